// Package participants resolves participant profiles from the profile service.
package participants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

var ErrProfileNotFound = errors.New("participant profile not found")

// TokenSource supplies the bearer token for calls to the profile service.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Directory struct {
	BaseURL string
	Client  *http.Client
	Cache   Cache       // optional
	Tokens  TokenSource // optional
	Logger  *logger.Logger
}

func NewDirectory(baseURL string, client *http.Client, cache Cache, tokens TokenSource, log *logger.Logger) *Directory {
	if client == nil {
		client = http.DefaultClient
	}
	return &Directory{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		Cache:   cache,
		Tokens:  tokens,
		Logger:  log,
	}
}

// Lookup returns one profile, from cache when possible.
func (d *Directory) Lookup(ctx context.Context, id string) (models.Participant, error) {
	if d.Cache != nil {
		p, ok, err := d.Cache.Get(ctx, id)
		if err != nil {
			d.Logger.Warn("PROFILE", fmt.Sprintf("Cache read failed for %s: %v", id, err))
		} else if ok {
			return p, nil
		}
	}

	p, err := d.fetch(ctx, id)
	if err != nil {
		return models.Participant{}, err
	}

	if d.Cache != nil {
		if err := d.Cache.Put(ctx, p); err != nil {
			d.Logger.Warn("PROFILE", fmt.Sprintf("Cache write failed for %s: %v", id, err))
		}
	}
	return p, nil
}

// Resolve looks up every id. Unknown participants are left out and logged;
// the first transport error aborts.
func (d *Directory) Resolve(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	out := make(map[string]models.Participant, len(ids))
	for _, id := range ids {
		p, err := d.Lookup(ctx, id)
		if errors.Is(err, ErrProfileNotFound) {
			d.Logger.Warn("PROFILE", fmt.Sprintf("No profile for participant %s", id))
			continue
		}
		if err != nil {
			return out, err
		}
		out[id] = p
	}
	return out, nil
}

func (d *Directory) fetch(ctx context.Context, id string) (models.Participant, error) {
	requestURL := fmt.Sprintf("%s/internal/v1/users/%s", d.BaseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return models.Participant{}, err
	}

	if d.Tokens != nil {
		token, err := d.Tokens.Token(ctx)
		if err != nil {
			return models.Participant{}, fmt.Errorf("get M2M token: %w", err)
		}
		req.Header.Add("Authorization", "Bearer "+token)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		d.Logger.Error("HTTP", fmt.Sprintf("Profile request for %s failed: %v", id, err))
		return models.Participant{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Participant{}, ErrProfileNotFound
	case resp.StatusCode != http.StatusOK:
		return models.Participant{}, fmt.Errorf("profile service returned %s", resp.Status)
	}

	var p models.Participant
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return models.Participant{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}
