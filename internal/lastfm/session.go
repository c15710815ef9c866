package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// authURLBase is where the user authorizes a request token.
const authURLBase = "https://www.last.fm/api/auth/"

// LoadSession reads the persisted session key, if any. Returns false
// when no usable key exists yet.
func (c *Client) LoadSession() (bool, error) {
	if c.sessionFile == "" {
		return false, nil
	}
	data, err := os.ReadFile(c.sessionFile)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return false, nil
	}
	c.sessionKey = key
	return true, nil
}

// HasSession reports whether an authenticated session key is loaded.
func (c *Client) HasSession() bool {
	return c.sessionKey != ""
}

// EnsureSession makes sure an authenticated session exists. On first
// use it requests a token, hands the browser authorization URL to
// authorize (which blocks until the user has approved it out-of-band),
// exchanges the token for a session key, and persists the key.
func (c *Client) EnsureSession(ctx context.Context, authorize func(authURL string) error) error {
	if loaded, err := c.LoadSession(); err != nil {
		return err
	} else if loaded {
		return nil
	}

	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	authURL := fmt.Sprintf("%s?api_key=%s&token=%s", authURLBase, c.apiKey, token)
	if err := authorize(authURL); err != nil {
		return err
	}

	key, err := c.getSession(ctx, token)
	if err != nil {
		return err
	}
	c.sessionKey = key

	if c.sessionFile != "" {
		if err := os.WriteFile(c.sessionFile, []byte(key+"\n"), 0o600); err != nil {
			return fmt.Errorf("failed to persist session key: %w", err)
		}
	}
	return nil
}

func (c *Client) getToken(ctx context.Context) (string, error) {
	raw, err := c.call(ctx, "auth.getToken", nil, true)
	if err != nil {
		return "", err
	}
	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("service returned an empty token")
	}
	return resp.Token, nil
}

func (c *Client) getSession(ctx context.Context, token string) (string, error) {
	raw, err := c.call(ctx, "auth.getSession",
		map[string]string{"token": token}, true)
	if err != nil {
		return "", err
	}
	var resp sessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to decode session: %w", err)
	}
	if resp.Session.Key == "" {
		return "", fmt.Errorf("service returned an empty session key")
	}
	return resp.Session.Key, nil
}
