package main

import (
	"encoding/json"
	"time"
)

// MCP Protocol Types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema MCPInputSchema `json:"inputSchema"`
}

type MCPInputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

type MCPResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// MCPToolResult is the payload of a tools/call response. Tool-level failures
// are reported through IsError so the host renders them to the user instead
// of treating the call as a protocol fault.
type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Strava API Response Types
type StravaAthlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

// Activity is a Strava summary activity as returned by
// GET /api/v3/athlete/activities. Distances are meters, times are seconds,
// speeds are meters per second.
type Activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	AverageSpeed       float64   `json:"average_speed"`
	AverageHeartrate   float64   `json:"average_heartrate"`
}

// IsRun reports whether the activity is a running activity.
func (a Activity) IsRun() bool {
	return a.Type == "Run"
}

// TokenResponse is the Strava OAuth token endpoint response. Strava rotates
// refresh tokens, so RefreshToken may differ from the one that was sent.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Report Types
type WeeklyMileageReport struct {
	WeekStart  time.Time `json:"week_start"`
	TotalMiles float64   `json:"total_miles"`
	RunCount   int       `json:"run_count"`
}

type PaceTrendReport struct {
	PeriodDays         int     `json:"period_days"`
	RunCount           int     `json:"run_count"`
	AveragePaceSeconds float64 `json:"average_pace_seconds"`
	AveragePace        string  `json:"average_pace"`
	FirstHalfPace      string  `json:"first_half_pace,omitempty"`
	SecondHalfPace     string  `json:"second_half_pace,omitempty"`
	Trend              string  `json:"trend"` // "improving", "stable", "declining"
}

const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// Tool Input Types
type RecentRunsInput struct {
	Days int `json:"days,omitempty"`
}

type WeeklyMileageInput struct {
	Weeks int `json:"weeks,omitempty"`
}

type PaceTrendsInput struct {
	Days int `json:"days,omitempty"`
}
