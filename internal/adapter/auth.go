package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mentionwatch/internal/errs"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenSource supplies bearer tokens. Invalidate drops a cached token so the
// next Token call fetches a fresh one; Client calls it after a 401/403.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// StaticToken is a fixed bearer token. An empty token is a configuration error.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", errs.New(errs.KindConfig, "", "bearer token not configured")
	}
	return string(t), nil
}

func (StaticToken) Invalidate() {}

// cachedToken reuses a token until it expires or is invalidated.
type cachedToken struct {
	mu    sync.Mutex
	fetch func(ctx context.Context) (*oauth2.Token, error)
	tok   *oauth2.Token
}

func (c *cachedToken) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok.Valid() {
		return c.tok.AccessToken, nil
	}
	tok, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	c.tok = tok
	return tok.AccessToken, nil
}

func (c *cachedToken) Invalidate() {
	c.mu.Lock()
	c.tok = nil
	c.mu.Unlock()
}

// ClientCredentials fetches OAuth2 client-credentials tokens from tokenURL.
func ClientCredentials(platform, clientID, clientSecret, tokenURL string, hc *http.Client, scopes ...string) TokenSource {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return &cachedToken{fetch: func(ctx context.Context) (*oauth2.Token, error) {
		if clientID == "" || clientSecret == "" {
			return nil, errs.New(errs.KindConfig, platform, "oauth2 client credentials not configured")
		}
		if hc != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		}
		tok, err := cfg.Token(ctx)
		if err != nil {
			var re *oauth2.RetrieveError
			if errors.As(err, &re) && re.Response != nil {
				e := errs.FromStatus(platform, re.Response.StatusCode, string(re.Body))
				if e.Kind == errs.KindProvider {
					e.Kind = errs.KindAuth
				}
				return nil, e
			}
			return nil, &errs.Error{Kind: errs.KindAuth, Platform: platform, Op: "token", Err: err}
		}
		return tok, nil
	}}
}

// tokenExpirySkew renews exchanged tokens this long before they expire.
const tokenExpirySkew = 30 * time.Second

// BasicExchange trades basic credentials for a bearer token at tokenURL and
// caches it until shortly before expiry.
func BasicExchange(platform, tokenURL, username, password string, hc *http.Client) TokenSource {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &cachedToken{fetch: func(ctx context.Context) (*oauth2.Token, error) {
		if username == "" || password == "" {
			return nil, errs.New(errs.KindConfig, platform, "username/password not configured")
		}
		form := url.Values{"grant_type": {"password"}, "username": {username}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(username, password)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := hc.Do(req)
		if err != nil {
			return nil, errs.Provider(platform, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
			return nil, errs.FromStatus(platform, resp.StatusCode, string(b))
		}
		var body struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, errs.Provider(platform, fmt.Errorf("decode token: %w", err))
		}
		if body.AccessToken == "" {
			return nil, errs.New(errs.KindAuth, platform, "token exchange returned no access_token")
		}
		tok := &oauth2.Token{AccessToken: body.AccessToken, TokenType: "Bearer"}
		if body.ExpiresIn > 0 {
			tok.Expiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenExpirySkew)
		}
		return tok, nil
	}}
}
