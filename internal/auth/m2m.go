package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"ms-registration/internal/logger"
)

// ClientCredentials identifies this service to Keycloak for service-to-service calls.
type ClientCredentials struct {
	KeycloakURL   string
	KeycloakRealm string
	ClientID      string
	ClientSecret  string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// TokenStore persists the M2M token between replicas.
type TokenStore interface {
	GetToken(ctx context.Context) (*TokenCache, error)
	SetToken(ctx context.Context, token string, expiresIn int) error
}

// TokenProvider hands out a valid client-credentials token, refreshing it from Keycloak on demand.
type TokenProvider struct {
	Credentials ClientCredentials
	Client      *http.Client
	Store       TokenStore // optional
	Logger      *logger.Logger

	mu     sync.Mutex
	cached *TokenCache
}

func NewTokenProvider(creds ClientCredentials, client *http.Client, store TokenStore, log *logger.Logger) *TokenProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenProvider{Credentials: creds, Client: client, Store: store, Logger: log}
}

// Token returns the cached token or fetches a fresh one.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached.IsValid() {
		return p.cached.Token, nil
	}

	if p.Store != nil {
		cached, err := p.Store.GetToken(ctx)
		if err != nil {
			p.Logger.Warn("AUTH", fmt.Sprintf("Token cache read failed: %v", err))
		} else if cached != nil {
			p.cached = cached
			return cached.Token, nil
		}
	}

	resp, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}

	p.cached = newTokenCache(resp.AccessToken, resp.ExpiresIn)
	if p.Store != nil {
		if err := p.Store.SetToken(ctx, resp.AccessToken, resp.ExpiresIn); err != nil {
			p.Logger.Warn("AUTH", fmt.Sprintf("Token cache write failed: %v", err))
		}
	}
	return resp.AccessToken, nil
}

func (p *TokenProvider) fetch(ctx context.Context) (*tokenResponse, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
		strings.TrimRight(p.Credentials.KeycloakURL, "/"), p.Credentials.KeycloakRealm)
	p.Logger.Debug("AUTH", fmt.Sprintf("Requesting M2M token from: %s", tokenURL))

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", p.Credentials.ClientID)
	data.Set("client_secret", p.Credentials.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		p.Logger.Error("AUTH", fmt.Sprintf("Keycloak token response %s: %s", resp.Status, string(body)))
		return nil, fmt.Errorf("failed to get token, status: %s", resp.Status)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response carried no access_token")
	}
	return &tokenResp, nil
}
