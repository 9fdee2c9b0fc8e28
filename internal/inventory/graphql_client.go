// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package inventory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/kestrelsec/vulnsync/internal/config"
	"github.com/kestrelsec/vulnsync/internal/metrics"
)

const maxErrorBodySize = 64 * 1024

// GraphQLError is one entry of a GraphQL response's errors array.
type GraphQLError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// QueryError carries the errors array of a failed GraphQL response.
type QueryError struct {
	Errors []GraphQLError
}

func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return fmt.Sprintf("graphql query failed: %s", strings.Join(msgs, "; "))
}

// GraphQLClientInterface is the transport surface the drill-down engine
// depends on. Implemented by GraphQLClient for production and by fakes in
// tests.
type GraphQLClientInterface interface {
	// Query posts one GraphQL request and decodes the data payload into
	// out. A non-empty errors array fails the call with a *QueryError.
	Query(ctx context.Context, query string, variables map[string]any, out any) error
}

// GraphQLClient posts queries to a single GraphQL endpoint with bearer
// token auth. Thread-safe; every call builds its own request.
type GraphQLClient struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewGraphQLClient creates a client from configuration.
func NewGraphQLClient(cfg *config.GitHubConfig) *GraphQLClient {
	return &GraphQLClient{
		endpoint: cfg.BaseURL,
		token:    cfg.Token,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// Query implements GraphQLClientInterface.
func (c *GraphQLClient) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues("github", "error").Inc()
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.RemoteRequests.WithLabelValues("github", "error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return fmt.Errorf("graphql endpoint returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var envelope graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		metrics.RemoteRequests.WithLabelValues("github", "error").Inc()
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		metrics.RemoteRequests.WithLabelValues("github", "error").Inc()
		return &QueryError{Errors: envelope.Errors}
	}

	metrics.RemoteRequests.WithLabelValues("github", "success").Inc()
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode graphql data: %w", err)
		}
	}
	return nil
}
