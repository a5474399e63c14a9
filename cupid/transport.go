package cupid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Header names used by the API
const (
	headerActingUser = "Cupid-User"
	headerRequestID  = "X-Request-Id"
)

// tokenCell holds the bearer token of one authenticated entity. Every
// client derived from the entity holds the same cell and reads it per
// request, so a refresh is seen by all of them.
type tokenCell struct {
	p atomic.Pointer[string]
}

func newTokenCell(token string) *tokenCell {
	c := &tokenCell{}
	c.Store(token)
	return c
}

// Load returns the current token
func (c *tokenCell) Load() string {
	if p := c.p.Load(); p != nil {
		return *p
	}
	return ""
}

// Store replaces the token
func (c *tokenCell) Store(token string) {
	c.p.Store(&token)
}

// transport performs HTTP calls against the API and classifies failures
type transport struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	userAgent  string
	limiter    *rate.Limiter
	metrics    *clientMetrics
}

// call describes a single API request
type call struct {
	method string
	// route is the path template, used for logs and metrics
	route string
	path  string
	query url.Values
	body  any
	out   any

	token      string
	actingUser string
}

// do performs c and decodes a 2xx response body into c.out. Any other
// status is returned as *APIError.
func (t *transport) do(ctx context.Context, c call) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reqBody io.Reader
	if c.body != nil {
		if err := recordValidate.Struct(c.body); err != nil {
			return fmt.Errorf("invalid request body: %w", err)
		}
		data, err := json.Marshal(c.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := t.baseURL + c.path
	if len(c.query) > 0 {
		endpoint += "?" + c.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, c.method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set(headerRequestID, requestID)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.actingUser != "" {
		req.Header.Set(headerActingUser, c.actingUser)
	}

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.metrics.observe(c.method, c.route, 0, time.Since(start))
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	t.metrics.observe(c.method, c.route, resp.StatusCode, elapsed)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	t.logger.Debug().
		Str("method", c.method).
		Str("route", c.route).
		Str("path", c.path).
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Dur("elapsed", elapsed).
		Msg("Cupid API request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, body)
	}

	if c.out == nil {
		return nil
	}
	if err := json.Unmarshal(body, c.out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, c.method, c.route, err)
	}
	if err := validateResponse(c.out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrInvalidResponse, c.method, c.route, err)
	}
	return nil
}

// newAPIError builds the error for a non-2xx response. Bodies that are not
// the API's JSON error payload are kept verbatim as the message.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Description == "" && apiErr.Message == "" && len(apiErr.Problems) == 0) {
		apiErr = &APIError{Message: strings.TrimSpace(string(body))}
	}
	apiErr.Status = status
	apiErr.Kind = KindForStatus(status)
	if apiErr.Description == "" {
		apiErr.Description = http.StatusText(status)
	}
	if apiErr.Kind != KindValidation {
		apiErr.Problems = nil
	}
	return apiErr
}

type selfValidator interface {
	validate() error
}

func validateResponse(out any) error {
	if v, ok := out.(selfValidator); ok {
		return v.validate()
	}
	var invalid *validator.InvalidValidationError
	err := recordValidate.Struct(out)
	if errors.As(err, &invalid) {
		// not a struct, nothing to check
		return nil
	}
	return err
}
