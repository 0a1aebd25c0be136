// Package target delivers events to their REST targets.
package target

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// Executor delivers events over HTTP. It is created per run and owns that
// run's token cache.
type Executor struct {
	tokens     *TokenCache
	httpClient *http.Client
}

// NewExecutor creates an executor with an empty token cache. A nil client
// uses a default http.Client.
func NewExecutor(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{tokens: NewTokenCache(client), httpClient: client}
}

// PrepareToken obtains (or reuses) the bearer token of a target. The error
// is informational: Execute reports it per event as a retryable result.
func (x *Executor) PrepareToken(ctx context.Context, t *model.Target) error {
	_, err := x.tokens.Get(ctx, t)
	return err
}

// Execute delivers one event to the target and classifies the outcome.
// Failures never escape as errors; they become retryable results.
func (x *Executor) Execute(ctx context.Context, t *model.Target, e *model.Event) model.ProcessingResult {
	tok, err := x.tokens.Get(ctx, t)
	if err != nil {
		return model.TokenErrorResult(e.ID, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, e.Operation.Kind.RESTMethod(), t.EndpointURL, strings.NewReader(e.Source))
	if err != nil {
		return model.RetryableResult(e.ID, fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Trx-Id", e.TrxID)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return model.RetryableResult(e.ID, fmt.Sprintf("Retryable error: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.RetryableResult(e.ID, fmt.Sprintf("Retryable error: reading response: %v", err))
	}
	return model.ClassifyResponse(e.ID, resp.StatusCode, body)
}
