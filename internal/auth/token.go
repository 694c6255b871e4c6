// Package auth manages cached OAuth credentials for the reasoning engine
// when llm.auth_mode is "oauth". The credential file is the provider CLI's
// own cache, so a login performed there is picked up here unchanged. Token
// material never appears in logs.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shiftbot/internal/fault"
	"shiftbot/internal/logging"
)

const (
	// TokenEndpoint is the OAuth token refresh endpoint.
	TokenEndpoint = "https://chat.qwen.ai/api/v1/oauth2/token"
	// ClientID is the public device-flow client the provider CLI registers
	// tokens under. Refreshes must present the same client.
	ClientID = "f0304373b74a44d2b584a3fb70ca9e56"

	// expiryMargin refreshes early so an in-flight completion never
	// straddles the expiry.
	expiryMargin = 5 * time.Minute
)

// Credentials mirrors the provider CLI's credential file. ExpiryDate is
// absolute, in Unix milliseconds.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ResourceURL  string `json:"resource_url,omitempty"`
	ExpiryDate   int64  `json:"expiry_date"`
}

func (c *Credentials) expired(now time.Time) bool {
	return now.Add(expiryMargin).UnixMilli() >= c.ExpiryDate
}

// TokenManager loads, refreshes, and persists OAuth credentials.
type TokenManager struct {
	path     string
	endpoint string
	client   *http.Client

	mu    sync.Mutex
	creds *Credentials
}

// NewTokenManager creates a manager over the credential file at path. The
// file is read lazily on first Token call.
func NewTokenManager(path string) *TokenManager {
	return &TokenManager{
		path:     path,
		endpoint: TokenEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Load reads the credential file from disk.
func (tm *TokenManager) Load() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.load()
}

func (tm *TokenManager) load() error {
	data, err := os.ReadFile(tm.path)
	if err != nil {
		return err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parsing credential file %s: %w", tm.path, err)
	}
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return fmt.Errorf("credential file %s holds no tokens", tm.path)
	}
	tm.creds = &creds
	return nil
}

// Save writes the credentials back to disk, mode 0600.
func (tm *TokenManager) Save() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.save()
}

func (tm *TokenManager) save() error {
	if tm.creds == nil {
		return nil
	}

	data, err := json.MarshalIndent(tm.creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(tm.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tm.path, data, 0o600)
}

// ResourceURL returns the API host hint from the credential file, if any.
func (tm *TokenManager) ResourceURL() string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.creds == nil {
		return ""
	}
	return tm.creds.ResourceURL
}

// Token returns a valid bearer token, refreshing through the OAuth
// endpoint when the cached one is within five minutes of expiry.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.Lock()
	if tm.creds == nil {
		if err := tm.load(); err != nil {
			tm.mu.Unlock()
			return "", fault.Configf("no cached credentials at %s, log in with the provider CLI first: %v", tm.path, err)
		}
	}
	if !tm.creds.expired(time.Now()) {
		token := tm.creds.AccessToken
		tm.mu.Unlock()
		return token, nil
	}
	refreshToken := tm.creds.RefreshToken
	tm.mu.Unlock()

	logging.L("auth").Debugw("access token near expiry, refreshing")
	if err := tm.Refresh(ctx, refreshToken); err != nil {
		return "", err
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.creds.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token and persists
// the rotated credentials. A 400 from the endpoint means the refresh token
// itself is dead; only a fresh CLI login fixes that.
func (tm *TokenManager) Refresh(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return fault.Configf("no refresh token cached at %s", tm.path)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := tm.client.Do(req)
	if err != nil {
		return fault.Transport("token refresh", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		return fault.Configf("refresh token rejected, re-authenticate with the provider CLI")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("token refresh failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		TokenType        string `json:"token_type"`
		ResourceURL      string `json:"resource_url"`
		ExpiresIn        int64  `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if out.Error != "" {
		return fmt.Errorf("token refresh failed: %s: %s", out.Error, out.ErrorDescription)
	}

	tm.mu.Lock()
	if tm.creds == nil {
		tm.creds = &Credentials{}
	}
	tm.creds.AccessToken = out.AccessToken
	if out.TokenType != "" {
		tm.creds.TokenType = out.TokenType
	}
	// The endpoint may rotate the refresh token; keep the old one otherwise.
	if out.RefreshToken != "" {
		tm.creds.RefreshToken = out.RefreshToken
	} else {
		tm.creds.RefreshToken = refreshToken
	}
	if out.ResourceURL != "" {
		tm.creds.ResourceURL = out.ResourceURL
	}
	tm.creds.ExpiryDate = time.Now().UnixMilli() + out.ExpiresIn*1000
	saveErr := tm.save()
	tm.mu.Unlock()

	if saveErr != nil {
		logging.L("auth").Warnw("failed to persist refreshed credentials", "error", saveErr)
	}
	logging.L("auth").Debugw("access token refreshed")
	return nil
}
