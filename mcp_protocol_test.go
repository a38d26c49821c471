package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestMCPServer wires the server to a fake Strava upstream and captures
// output frames in the returned buffer.
func newTestMCPServer(t *testing.T, apiHandler http.HandlerFunc) (*MCPServer, *bytes.Buffer) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tokenJSON("test-token", "", time.Now().Add(time.Hour)))
	})
	if apiHandler != nil {
		mux.HandleFunc("/", apiHandler)
	}

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	server := NewMCPServer(testConfig(ts))
	server.initialized = true

	out := &bytes.Buffer{}
	server.out = out
	return server, out
}

func decodeResponse(t *testing.T, out *bytes.Buffer) MCPResponse {
	t.Helper()
	var resp MCPResponse
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", out.String(), err)
	}
	return resp
}

func decodeToolResult(t *testing.T, out *bytes.Buffer) MCPToolResult {
	t.Helper()
	resp := decodeResponse(t, out)
	if resp.Error != nil {
		t.Fatalf("expected a tool result, got JSON-RPC error: %+v", resp.Error)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("failed to re-marshal result: %v", err)
	}
	var result MCPToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode tool result: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	return result
}

func toolCallRequest(name, arguments string) *MCPRequest {
	params := fmt.Sprintf(`{"name":%q,"arguments":%s}`, name, arguments)
	return &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(params),
	}
}

func TestValidateWindow(t *testing.T) {
	tests := []struct {
		name     string
		value    int
		expected int
		wantErr  bool
	}{
		{"absent uses default", 0, 30, false},
		{"valid value kept", 14, 14, false},
		{"upper bound kept", 365, 365, false},
		{"negative rejected", -1, 0, true},
		{"above bound rejected", 366, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateWindow("days", tt.value, 30, 365)
			if tt.wantErr {
				var valErr *ValidationError
				if !errors.As(err, &valErr) {
					t.Fatalf("expected *ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("validateWindow() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestFormatToolError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "auth error carries reauth hint",
			err:      fmt.Errorf("wrapped: %w", &AuthError{Reason: "refresh token rejected"}),
			contains: "Re-authorize",
		},
		{
			name:     "validation error",
			err:      &ValidationError{Param: "days", Message: "must be between 1 and 365"},
			contains: "Invalid request",
		},
		{
			name:     "network error suggests retrying",
			err:      &NetworkError{Op: "strava API", Err: fmt.Errorf("rate limit exceeded")},
			contains: "try again",
		},
		{
			name:     "plain error",
			err:      fmt.Errorf("boom"),
			contains: "Error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatToolError(tt.err); !strings.Contains(got, tt.contains) {
				t.Errorf("formatToolError() = %q, want it to contain %q", got, tt.contains)
			}
		})
	}
}

func TestFilterRuns(t *testing.T) {
	activities := []Activity{
		{ID: 1, Type: "Run"},
		{ID: 2, Type: "Ride"},
		{ID: 3, Type: "Run"},
		{ID: 4, Type: "Swim"},
	}

	runs := filterRuns(activities)
	if len(runs) != 2 || runs[0].ID != 1 || runs[1].ID != 3 {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func TestMCPServer_NotInitialized(t *testing.T) {
	server, out := newTestMCPServer(t, nil)
	server.initialized = false

	server.handleToolsList(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	resp := decodeResponse(t, out)
	if resp.Error == nil || resp.Error.Code != -32002 {
		t.Errorf("expected -32002 error, got %+v", resp.Error)
	}
}

func TestMCPServer_UnknownMethod(t *testing.T) {
	server, out := newTestMCPServer(t, nil)

	server.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "bogus/method"})

	resp := decodeResponse(t, out)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Errorf("expected -32601 error, got %+v", resp.Error)
	}
}

func TestMCPServer_UnknownToolIsProtocolError(t *testing.T) {
	server, out := newTestMCPServer(t, nil)

	server.handleToolsCall(context.Background(), toolCallRequest("does_not_exist", `{}`))

	resp := decodeResponse(t, out)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("expected -32602 error, got %+v", resp.Error)
	}
}

func TestMCPServer_ValidationErrorIsStructuredResult(t *testing.T) {
	server, out := newTestMCPServer(t, nil)

	server.handleToolsCall(context.Background(), toolCallRequest("get_recent_runs", `{"days":-3}`))

	result := decodeToolResult(t, out)
	if !result.IsError {
		t.Error("expected isError result for out-of-range parameter")
	}
	if !strings.Contains(result.Content[0].Text, "days") {
		t.Errorf("error text should name the parameter: %q", result.Content[0].Text)
	}
}

func TestMCPServer_RejectedRefreshTokenIsStructuredResult(t *testing.T) {
	// Upstream that rejects the refresh grant outright, as Strava does for a
	// revoked token.
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"Bad Request"}`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	server := NewMCPServer(testConfig(ts))
	server.initialized = true
	out := &bytes.Buffer{}
	server.out = out

	server.handleToolsCall(context.Background(), toolCallRequest("get_recent_runs", `{"days":7}`))

	result := decodeToolResult(t, out)
	if !result.IsError {
		t.Fatal("expected isError result for a rejected refresh token")
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "authentication failed") || !strings.Contains(text, "Re-authorize") {
		t.Errorf("auth failure text should explain recovery, got %q", text)
	}
}

func TestMCPServer_WeeklyMileageZeroActivities(t *testing.T) {
	server, out := newTestMCPServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})

	server.handleToolsCall(context.Background(), toolCallRequest("get_weekly_mileage", `{"weeks":3}`))

	result := decodeToolResult(t, out)
	if result.IsError {
		t.Fatalf("unexpected error result: %q", result.Content[0].Text)
	}
	text := result.Content[0].Text
	if got := strings.Count(text, "Week of "); got != 3 {
		t.Errorf("expected 3 week lines for zero activities, got %d in %q", got, text)
	}
	if !strings.Contains(text, "Total: 0.0 miles") {
		t.Errorf("expected zero total, got %q", text)
	}
}

func TestMCPServer_RecentRunsFormatsActivities(t *testing.T) {
	server, out := newTestMCPServer(t, func(w http.ResponseWriter, r *http.Request) {
		activities := []Activity{
			{
				ID:             1,
				Name:           "Tempo Tuesday",
				Type:           "Run",
				Distance:       8046.72, // 5 miles
				ElapsedTime:    2400,
				StartDateLocal: time.Now().AddDate(0, 0, -1),
				AverageSpeed:   1609.344 / 480, // 8:00/mile
			},
			{
				ID:             2,
				Name:           "Coffee Ride",
				Type:           "Ride",
				Distance:       30000,
				StartDateLocal: time.Now().AddDate(0, 0, -2),
			},
		}
		json.NewEncoder(w).Encode(activities)
	})

	server.handleToolsCall(context.Background(), toolCallRequest("get_recent_runs", `{}`))

	result := decodeToolResult(t, out)
	if result.IsError {
		t.Fatalf("unexpected error result: %q", result.Content[0].Text)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "Found 1 running activities in the last 30 days") {
		t.Errorf("ride should be filtered out, got %q", text)
	}
	if !strings.Contains(text, "Tempo Tuesday") || !strings.Contains(text, "5.00 miles") {
		t.Errorf("missing run details in %q", text)
	}
	if !strings.Contains(text, "8:00/mile") {
		t.Errorf("missing pace in %q", text)
	}
}

func TestMCPServer_PaceTrendsTool(t *testing.T) {
	server, out := newTestMCPServer(t, func(w http.ResponseWriter, r *http.Request) {
		activities := make([]Activity, 4)
		speeds := []float64{2.5, 2.5, 3.0, 3.0}
		for i := range activities {
			activities[i] = Activity{
				ID:             int64(i + 1),
				Type:           "Run",
				Distance:       5000,
				StartDateLocal: time.Now().AddDate(0, 0, -8+i),
				AverageSpeed:   speeds[i],
			}
		}
		json.NewEncoder(w).Encode(activities)
	})

	server.handleToolsCall(context.Background(), toolCallRequest("analyze_pace_trends", `{"days":14}`))

	result := decodeToolResult(t, out)
	if result.IsError {
		t.Fatalf("unexpected error result: %q", result.Content[0].Text)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "Pace analysis for the last 14 days") {
		t.Errorf("missing header in %q", text)
	}
	if !strings.Contains(text, "Trend: improving") {
		t.Errorf("expected improving trend, got %q", text)
	}
}

func TestMCPServer_RunServesRequestsUntilEOF(t *testing.T) {
	server, out := newTestMCPServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/athlete" {
			fmt.Fprint(w, `{"id":42,"username":"runner42"}`)
			return
		}
		fmt.Fprint(w, "[]")
	})
	server.initialized = false

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`not json at all`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n") + "\n"
	server.in = strings.NewReader(input)

	if err := server.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	frames := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(frames) != 3 {
		t.Fatalf("expected 3 response frames, got %d: %v", len(frames), frames)
	}

	var parseErr MCPResponse
	if err := json.Unmarshal([]byte(frames[1]), &parseErr); err != nil {
		t.Fatalf("failed to decode second frame: %v", err)
	}
	if parseErr.Error == nil || parseErr.Error.Code != -32700 {
		t.Errorf("expected parse error frame, got %+v", parseErr.Error)
	}

	var toolsList MCPResponse
	if err := json.Unmarshal([]byte(frames[2]), &toolsList); err != nil {
		t.Fatalf("failed to decode third frame: %v", err)
	}
	if toolsList.Error != nil {
		t.Errorf("tools/list after initialize should succeed, got %+v", toolsList.Error)
	}
}

func TestMCPServer_RunStopsOnContextCancel(t *testing.T) {
	server, _ := newTestMCPServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A reader that would block forever; cancellation must win.
	pr, pw := io.Pipe()
	defer pw.Close()
	server.in = pr

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error on cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestDefineMCPTools(t *testing.T) {
	tools := defineMCPTools()
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}

	want := map[string]bool{
		"get_recent_runs":     false,
		"get_weekly_mileage":  false,
		"analyze_pace_trends": false,
	}
	for _, tool := range tools {
		if _, ok := want[tool.Name]; !ok {
			t.Errorf("unexpected tool %q", tool.Name)
			continue
		}
		want[tool.Name] = true
		if tool.Description == "" {
			t.Errorf("tool %q has no description", tool.Name)
		}
		if tool.InputSchema.Type != "object" {
			t.Errorf("tool %q schema type = %q", tool.Name, tool.InputSchema.Type)
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing tool %q", name)
		}
	}
}
