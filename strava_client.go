package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	activitiesPerPage = 100
	maxActivityPages  = 10
	maxRequestRetries = 3
)

// StravaClient handles all interactions with the Strava API. Every request
// goes through the rate limiter and carries a valid access token from the
// token manager.
type StravaClient struct {
	client      *http.Client
	rateLimiter *rate.Limiter
	tokens      *TokenManager
	baseURL     string
}

// NewStravaClient creates a Strava API client with rate limiting.
func NewStravaClient(cfg *Config, tokens *TokenManager) *StravaClient {
	// Strava allows 100 requests per 15 minutes; the configured per-minute
	// limit stays well under that by default.
	rateLimiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimit)), 5)

	return &StravaClient{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		rateLimiter: rateLimiter,
		tokens:      tokens,
		baseURL:     cfg.BaseURL,
	}
}

// ListActivities fetches all activities started after the given time,
// following pagination until a short page. Results are returned in the order
// Strava yields them.
func (c *StravaClient) ListActivities(ctx context.Context, after time.Time) ([]Activity, error) {
	var all []Activity

	for page := 1; page <= maxActivityPages; page++ {
		params := url.Values{}
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
		params.Set("per_page", strconv.Itoa(activitiesPerPage))
		params.Set("page", strconv.Itoa(page))

		body, err := c.makeRequest(ctx, "/athlete/activities", params)
		if err != nil {
			return nil, fmt.Errorf("failed to list activities: %w", err)
		}

		var batch []Activity
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("failed to parse activities: %w", err)
		}

		all = append(all, batch...)

		if len(batch) < activitiesPerPage {
			break
		}
	}

	return all, nil
}

// GetAthlete retrieves the authenticated athlete's profile.
func (c *StravaClient) GetAthlete(ctx context.Context) (*StravaAthlete, error) {
	body, err := c.makeRequest(ctx, "/athlete", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get athlete profile: %w", err)
	}

	var athlete StravaAthlete
	if err := json.Unmarshal(body, &athlete); err != nil {
		return nil, fmt.Errorf("failed to parse athlete profile: %w", err)
	}

	return &athlete, nil
}

// ValidateConnection tests the API connection and authentication.
func (c *StravaClient) ValidateConnection(ctx context.Context) error {
	if _, err := c.GetAthlete(ctx); err != nil {
		return fmt.Errorf("API connection validation failed: %w", err)
	}
	return nil
}

// makeRequest performs an authenticated GET against the Strava API. If the
// API rejects a token the manager believed valid, the cache is invalidated
// and the request is retried exactly once before the auth error surfaces.
func (c *StravaClient) makeRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	body, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.tokens.Invalidate()
			return c.doRequest(ctx, endpoint, params)
		}
		return nil, err
	}
	return body, nil
}

// doRequest issues a single logical request, retrying transient failures
// (transport errors, 429, 5xx) with exponential backoff. Auth and client
// errors are permanent.
func (c *StravaClient) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	requestURL := c.baseURL + endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var body []byte
	operation := func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
		}

		token, err := c.tokens.GetValidToken(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token.Value)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "Strava-MCP-Server/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			return &NetworkError{Op: "GET " + endpoint, Err: err}
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return &NetworkError{Op: "GET " + endpoint, Err: err}
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := c.handleAPIError(resp.StatusCode, b)
			var netErr *NetworkError
			if errors.As(apiErr, &netErr) {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		body = b
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRequestRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return body, nil
}

// handleAPIError maps API error responses onto the error taxonomy.
func (c *StravaClient) handleAPIError(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return &AuthError{Reason: "access token rejected by the Strava API"}
	case http.StatusForbidden:
		return &AuthError{Reason: "access denied: token is missing the activity:read scope"}
	case http.StatusTooManyRequests:
		return &NetworkError{Op: "strava API", Err: fmt.Errorf("rate limit exceeded")}
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", string(body))
	case http.StatusNotFound:
		return fmt.Errorf("resource not found")
	default:
		if statusCode >= 500 {
			return &NetworkError{Op: "strava API", Err: fmt.Errorf("upstream error (status %d)", statusCode)}
		}
		return fmt.Errorf("API error (status %d): %s", statusCode, string(body))
	}
}
