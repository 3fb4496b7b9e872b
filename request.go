package pulse

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Request identifies one attempt at one logical query.
type Request struct {
	Endpoint     string // base URL of the streaming endpoint
	Query        string
	RequestID    string // idempotency token, stable across attempts
	RetryAttempt int    // 0 for the first attempt; omitted from the URL when 0
}

// Validate checks universal constraints on Request.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("query must not be empty: %w", ErrValidation)
	}
	if r.RequestID == "" {
		return fmt.Errorf("request id must not be empty: %w", ErrValidation)
	}
	if r.RetryAttempt < 0 {
		return fmt.Errorf("retry attempt must be non-negative, got %d: %w", r.RetryAttempt, ErrValidation)
	}
	if _, err := url.Parse(r.Endpoint); err != nil || r.Endpoint == "" {
		return fmt.Errorf("invalid endpoint %q: %w", r.Endpoint, ErrValidation)
	}
	return nil
}

// URL renders <endpoint>?query=..&request_id=..[&retry_attempt=n]. Query
// parameters already present on Endpoint are kept.
func (r Request) URL() (string, error) {
	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", r.Query)
	q.Set("request_id", r.RequestID)
	if r.RetryAttempt > 0 {
		q.Set("retry_attempt", strconv.Itoa(r.RetryAttempt))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
