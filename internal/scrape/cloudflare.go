package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"mentionwatch/internal/errs"
)

// CloudflareRenderer renders pages through the Cloudflare Browser Rendering
// markdown endpoint. It satisfies Renderer.
// See: https://developers.cloudflare.com/browser-rendering/rest-api/
type CloudflareRenderer struct {
	endpoint string
	token    string
	http     *http.Client
}

type markdownRequest struct {
	URL                  string   `json:"url"`
	RejectRequestPattern []string `json:"rejectRequestPattern,omitempty"`
}

type markdownResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Errors  any    `json:"errors"`
}

// NewCloudflare returns nil when accountID or token is empty, so callers can
// pass the result straight into Options.Renderer.
func NewCloudflare(accountID, token string, timeout time.Duration) Renderer {
	accountID, token = strings.TrimSpace(accountID), strings.TrimSpace(token)
	if accountID == "" || token == "" {
		return nil
	}
	return newCloudflare(fmt.Sprintf("https://api.cloudflare.com/client/v4/accounts/%s/browser-rendering/markdown", accountID), token, timeout)
}

func newCloudflare(endpoint, token string, timeout time.Duration) *CloudflareRenderer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &CloudflareRenderer{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

// Render returns the page as markdown plus its most prominent heading.
func (c *CloudflareRenderer) Render(ctx context.Context, pageURL string) (title, content string, err error) {
	if c == nil {
		return "", "", errors.New("nil cloudflare renderer")
	}
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return "", "", errs.Newf(errs.KindValidation, "cloudflare", "invalid url: %v", err)
	}
	body, _ := json.Marshal(markdownRequest{
		URL:                  pageURL,
		RejectRequestPattern: []string{"/^.*\\.(css)/"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", errs.Provider("cloudflare", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		return "", "", errs.FromStatus("cloudflare", resp.StatusCode, string(b))
	}
	var envelope markdownResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", "", errs.Provider("cloudflare", err)
	}
	if !envelope.Success {
		return "", "", errs.Newf(errs.KindProvider, "cloudflare", "render failed: %v", envelope.Errors)
	}
	return markdownTitle(envelope.Result), envelope.Result, nil
}

// markdownTitle picks the heading with the fewest leading '#'.
func markdownTitle(md string) string {
	var headings []string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			headings = append(headings, line)
		}
	}
	if len(headings) == 0 {
		return ""
	}
	sort.SliceStable(headings, func(i, j int) bool {
		return headingLevel(headings[i]) < headingLevel(headings[j])
	})
	return strings.TrimSpace(strings.TrimLeft(headings[0], "#"))
}

func headingLevel(line string) int {
	return len(line) - len(strings.TrimLeft(line, "#"))
}
