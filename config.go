package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StravaAPIBaseURL = "https://www.strava.com/api/v3"
	StravaTokenURL   = "https://www.strava.com/oauth/token"
)

// Config holds all settings for the server, validated once at startup and
// passed into each component's constructor. Components never read the
// environment themselves.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	BaseURL        string
	TokenURL       string
	RateLimit      int // requests per minute
	RequestTimeout time.Duration
}

// LoadConfig reads and validates configuration from the environment.
// STRAVA_CLIENT_ID, STRAVA_CLIENT_SECRET and STRAVA_REFRESH_TOKEN are
// required; the rest have defaults suitable for the production Strava API.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ClientID:       os.Getenv("STRAVA_CLIENT_ID"),
		ClientSecret:   os.Getenv("STRAVA_CLIENT_SECRET"),
		RefreshToken:   os.Getenv("STRAVA_REFRESH_TOKEN"),
		BaseURL:        StravaAPIBaseURL,
		TokenURL:       StravaTokenURL,
		RateLimit:      60,
		RequestTimeout: 30 * time.Second,
	}

	var missing []string
	if cfg.ClientID == "" {
		missing = append(missing, "STRAVA_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, "STRAVA_CLIENT_SECRET")
	}
	if cfg.RefreshToken == "" {
		missing = append(missing, "STRAVA_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if v := os.Getenv("STRAVA_API_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimSuffix(v, "/")
	}
	if v := os.Getenv("STRAVA_TOKEN_URL"); v != "" {
		cfg.TokenURL = v
	}
	if v := os.Getenv("STRAVA_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid STRAVA_RATE_LIMIT %q: must be a positive integer", v)
		}
		cfg.RateLimit = n
	}
	if v := os.Getenv("STRAVA_REQUEST_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid STRAVA_REQUEST_TIMEOUT %q: must be a positive number of seconds", v)
		}
		cfg.RequestTimeout = time.Duration(n) * time.Second
	}

	return cfg, nil
}
