package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"ms-registration/internal/logger"
)

// TokenSource supplies the bearer token for outbound service calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// OwnershipVerifier asks the event service whether a user organizes an event.
// A nil verifier allows every request.
type OwnershipVerifier struct {
	EventServiceURL string
	Client          *http.Client
	Tokens          TokenSource // optional
	Logger          *logger.Logger
}

func NewOwnershipVerifier(eventServiceURL string, client *http.Client, tokens TokenSource, log *logger.Logger) *OwnershipVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &OwnershipVerifier{
		EventServiceURL: strings.TrimRight(eventServiceURL, "/"),
		Client:          client,
		Tokens:          tokens,
		Logger:          log,
	}
}

// VerifyEventOwnership → true when userID owns eventID
func (v *OwnershipVerifier) VerifyEventOwnership(ctx context.Context, eventID, userID string) (bool, error) {
	if v == nil {
		return true, nil
	}
	v.Logger.Debug("AUTH", fmt.Sprintf("Verifying ownership for event %s by user %s", eventID, userID))

	requestURL := fmt.Sprintf("%s/internal/v1/events/verify-ownership?eventId=%s&userId=%s",
		v.EventServiceURL, url.QueryEscape(eventID), url.QueryEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return false, err
	}

	if v.Tokens != nil {
		token, err := v.Tokens.Token(ctx)
		if err != nil {
			v.Logger.Error("AUTH", fmt.Sprintf("Failed to get M2M token: %v", err))
			return false, err
		}
		req.Header.Add("Authorization", "Bearer "+token)
	}

	resp, err := v.Client.Do(req)
	if err != nil {
		v.Logger.Error("HTTP", fmt.Sprintf("Failed to execute ownership verification request: %v", err))
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.Logger.Error("HTTP", fmt.Sprintf("Ownership verification failed with status: %s", resp.Status))
		return false, fmt.Errorf("ownership verification failed with status: %s", resp.Status)
	}

	var isOwner bool
	if err := json.NewDecoder(resp.Body).Decode(&isOwner); err != nil {
		return false, fmt.Errorf("decode ownership response: %w", err)
	}

	v.Logger.Debug("AUTH", fmt.Sprintf("User %s ownership of event %s: %v", userID, eventID, isOwner))
	return isOwner, nil
}
