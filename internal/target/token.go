package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// TokenError reports that a bearer token could not be obtained.
type TokenError struct {
	StatusCode int
	Message    string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("Error retrieving token: HTTP error code : %d description: %s", e.StatusCode, e.Message)
}

// token is the outcome of one token request. A failed request is remembered
// as well so every event of the target fails the same way within a run.
type token struct {
	value string
	err   error
}

// TokenCache holds the tokens obtained during one run, keyed by token URL.
// Targets sharing a token URL share the token.
type TokenCache struct {
	mu     sync.Mutex
	tokens map[string]*token
	client *http.Client
}

// NewTokenCache creates an empty cache. A nil client uses http.DefaultTransport.
func NewTokenCache(client *http.Client) *TokenCache {
	if client == nil {
		client = &http.Client{}
	}
	return &TokenCache{tokens: make(map[string]*token), client: client}
}

// Get returns the token for the target, requesting it on first use.
func (c *TokenCache) Get(ctx context.Context, t *model.Target) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tok, ok := c.tokens[t.TokenURL]; ok {
		return tok.value, tok.err
	}
	value, err := c.request(ctx, t)
	c.tokens[t.TokenURL] = &token{value: value, err: err}
	return value, err
}

func (c *TokenCache) request(ctx context.Context, t *model.Target) (string, error) {
	data, err := json.Marshal(struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}{t.User, t.Password})
	if err != nil {
		return "", fmt.Errorf("marshaling token request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.TokenURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &TokenError{StatusCode: resp.StatusCode, Message: statusDescription(resp.Status, body)}
	}

	var tr struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &tr); err != nil || tr.Token == "" {
		return "", &TokenError{StatusCode: resp.StatusCode, Message: "(Format error) - " + string(body)}
	}
	return tr.Token, nil
}

func statusDescription(status string, body []byte) string {
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return status + " " + msg
	}
	return status
}
