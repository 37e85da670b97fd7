// Package checkin issues encrypted QR passes for registrations and redeems them at the door.
package checkin

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/skip2/go-qrcode"

	"ms-registration/internal/models"
)

var ErrInvalidPass = errors.New("invalid check-in pass")

const qrSize = 256

// Pass is the payload sealed inside a QR code.
type Pass struct {
	RegistrationID string `json:"rid"`
	EventID        string `json:"eid"`
	ParticipantID  string `json:"pid"`
}

type PassIssuer struct {
	aead cipher.AEAD
}

func NewPassIssuer(secret string) (*PassIssuer, error) {
	if secret == "" {
		return nil, errors.New("check-in secret is empty")
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &PassIssuer{aead: aead}, nil
}

// Token seals the pass for reg into a URL-safe string.
func (p *PassIssuer) Token(reg *models.Registration) (string, error) {
	data, err := json.Marshal(Pass{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		ParticipantID:  reg.ParticipantID,
	})
	if err != nil {
		return "", err
	}

	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := p.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// QRCode renders the sealed token as a PNG.
func (p *PassIssuer) QRCode(reg *models.Registration) ([]byte, error) {
	token, err := p.Token(reg)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, qrSize)
}

// Open authenticates and decodes a token produced by Token.
func (p *PassIssuer) Open(token string) (Pass, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Pass{}, ErrInvalidPass
	}

	n := p.aead.NonceSize()
	if len(sealed) < n {
		return Pass{}, ErrInvalidPass
	}

	data, err := p.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return Pass{}, ErrInvalidPass
	}

	var pass Pass
	if err := json.Unmarshal(data, &pass); err != nil || pass.RegistrationID == "" {
		return Pass{}, ErrInvalidPass
	}
	return pass, nil
}
