package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokens refresh this long before the advertised expiry.
const tokenSkew = time.Minute

// tokenSource exchanges the refresh token for Login with Amazon access
// tokens and caches them until shortly before expiry.
type tokenSource struct {
	httpClient *http.Client
	tokenURL   string
	clientID   string
	secret     string
	refresh    string
	now        func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

type lwaResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Token returns a cached access token or fetches a fresh one.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && t.now().Add(tokenSkew).Before(t.expires) {
		return t.token, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {t.refresh},
		"client_id":     {t.clientID},
		"client_secret": {t.secret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lwa token: %w", err)
	}
	defer resp.Body.Close()

	var payload lwaResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode lwa token: %w", err)
	}
	if resp.StatusCode != http.StatusOK || payload.AccessToken == "" {
		return "", fmt.Errorf("lwa token: %s: %s %s", resp.Status, payload.Error, payload.ErrorDescription)
	}
	t.token = payload.AccessToken
	t.expires = t.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return t.token, nil
}
