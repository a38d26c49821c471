package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Tool parameter bounds. Absent or zero parameters fall back to the default;
// negative or above-bound values are rejected.
const (
	defaultDays  = 30
	maxDays      = 365
	defaultWeeks = 4
	maxWeeks     = 52
)

// MCPServer handles the Model Context Protocol communication
type MCPServer struct {
	stravaClient *StravaClient
	analyzer     *ActivityAnalyzer
	tools        []MCPTool
	resources    []MCPResource
	initialized  bool
	mu           sync.RWMutex

	in  io.Reader
	out io.Writer
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(cfg *Config) *MCPServer {
	tokens := NewTokenManager(cfg)

	return &MCPServer{
		stravaClient: NewStravaClient(cfg, tokens),
		analyzer:     NewActivityAnalyzer(),
		tools:        defineMCPTools(),
		resources:    defineMCPResources(),
		in:           os.Stdin,
		out:          os.Stdout,
	}
}

// Run serves newline-delimited JSON-RPC requests from stdin until EOF or
// until the context is cancelled. Requests are handled sequentially.
func (s *MCPServer) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("error reading from stdin: %w", err)
					}
				default:
				}
				return nil
			}

			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var request MCPRequest
			if err := json.Unmarshal(line, &request); err != nil {
				s.sendError(nil, -32700, "Parse error", err.Error())
				continue
			}

			s.handleRequest(ctx, &request)
		}
	}
}

// handleRequest processes incoming MCP requests
func (s *MCPServer) handleRequest(ctx context.Context, request *MCPRequest) {
	switch request.Method {
	case "initialize":
		s.handleInitialize(ctx, request)
	case "notifications/initialized":
		// Notification, no response expected.
	case "tools/list":
		s.handleToolsList(request)
	case "tools/call":
		s.handleToolsCall(ctx, request)
	case "resources/list":
		s.handleResourcesList(request)
	case "resources/read":
		s.handleResourcesRead(ctx, request)
	default:
		s.sendError(request.ID, -32601, "Method not found", fmt.Sprintf("Unknown method: %s", request.Method))
	}
}

// handleInitialize processes the initialize request
func (s *MCPServer) handleInitialize(ctx context.Context, request *MCPRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A failed probe is logged but does not fail the handshake: Strava being
	// briefly unreachable at startup must not take the server down, and later
	// tool calls report their own errors.
	if err := s.stravaClient.ValidateConnection(ctx); err != nil {
		log.Printf("Warning: Strava API validation failed during initialize: %v", err)
	}

	s.initialized = true

	result := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "strava-mcp-server",
			"version": "1.0.0",
		},
	}

	s.sendResponse(request.ID, result)
}

// handleToolsList returns the list of available tools
func (s *MCPServer) handleToolsList(request *MCPRequest) {
	if !s.isInitialized() {
		s.sendError(request.ID, -32002, "Not initialized", "Server not initialized")
		return
	}

	s.sendResponse(request.ID, map[string]interface{}{
		"tools": s.tools,
	})
}

// handleToolsCall executes a tool call. Tool failures become structured
// isError results so the host renders them to the user; only malformed
// requests are JSON-RPC errors.
func (s *MCPServer) handleToolsCall(ctx context.Context, request *MCPRequest) {
	if !s.isInitialized() {
		s.sendError(request.ID, -32002, "Not initialized", "Server not initialized")
		return
	}

	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(request.Params, &params); err != nil {
		s.sendError(request.ID, -32602, "Invalid params", err.Error())
		return
	}

	if !s.knownTool(params.Name) {
		s.sendError(request.ID, -32602, "Invalid params", fmt.Sprintf("Unknown tool: %s", params.Name))
		return
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		log.Printf("Tool %s failed: %v", params.Name, err)
		s.sendResponse(request.ID, MCPToolResult{
			Content: []MCPContent{{Type: "text", Text: formatToolError(err)}},
			IsError: true,
		})
		return
	}

	s.sendResponse(request.ID, MCPToolResult{
		Content: []MCPContent{{Type: "text", Text: result}},
	})
}

// handleResourcesList returns the list of available resources
func (s *MCPServer) handleResourcesList(request *MCPRequest) {
	if !s.isInitialized() {
		s.sendError(request.ID, -32002, "Not initialized", "Server not initialized")
		return
	}

	s.sendResponse(request.ID, map[string]interface{}{
		"resources": s.resources,
	})
}

// handleResourcesRead reads a specific resource
func (s *MCPServer) handleResourcesRead(ctx context.Context, request *MCPRequest) {
	if !s.isInitialized() {
		s.sendError(request.ID, -32002, "Not initialized", "Server not initialized")
		return
	}

	var params struct {
		URI string `json:"uri"`
	}

	if err := json.Unmarshal(request.Params, &params); err != nil {
		s.sendError(request.ID, -32602, "Invalid params", err.Error())
		return
	}

	content, err := s.readResource(ctx, params.URI)
	if err != nil {
		s.sendError(request.ID, -32603, "Internal error", err.Error())
		return
	}

	result := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      params.URI,
				"mimeType": "application/json",
				"text":     content,
			},
		},
	}

	s.sendResponse(request.ID, result)
}

// sendResponse sends a successful JSON-RPC response
func (s *MCPServer) sendResponse(id interface{}, result interface{}) {
	s.writeMessage(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// sendError sends an error JSON-RPC response
func (s *MCPServer) sendError(id interface{}, code int, message string, data interface{}) {
	s.writeMessage(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

// writeMessage writes a newline-delimited message to the output stream
func (s *MCPServer) writeMessage(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	if _, err := fmt.Fprintf(s.out, "%s\n", data); err != nil {
		log.Printf("Error writing message: %v", err)
	}
}

// isInitialized checks if the server is initialized
func (s *MCPServer) isInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *MCPServer) knownTool(name string) bool {
	for _, tool := range s.tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// formatToolError converts a lower-layer error into the message shown to the
// end user by the host.
func formatToolError(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return fmt.Sprintf("Strava authentication failed: %s\n%s", authErr.Reason, ReauthHint)
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return fmt.Sprintf("Invalid request: %v", valErr)
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return fmt.Sprintf("Strava API is currently unreachable (%v). Please try again in a moment.", netErr)
	}

	return fmt.Sprintf("Error: %v", err)
}

// validateWindow applies the default for absent parameters and rejects
// out-of-range values.
func validateWindow(name string, value, def, max int) (int, error) {
	if value == 0 {
		return def, nil
	}
	if value < 0 || value > max {
		return 0, &ValidationError{
			Param:   name,
			Message: fmt.Sprintf("must be between 1 and %d", max),
		}
	}
	return value, nil
}

// defineMCPTools defines the available MCP tools
func defineMCPTools() []MCPTool {
	return []MCPTool{
		{
			Name:        "get_recent_runs",
			Description: "Get recent running activities from Strava",
			InputSchema: MCPInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"days": map[string]interface{}{
						"type":        "integer",
						"description": "Number of days back to fetch activities (default: 30)",
						"default":     defaultDays,
						"minimum":     1,
						"maximum":     maxDays,
					},
				},
			},
		},
		{
			Name:        "get_weekly_mileage",
			Description: "Calculate weekly mileage totals for recent weeks",
			InputSchema: MCPInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"weeks": map[string]interface{}{
						"type":        "integer",
						"description": "Number of weeks to analyze (default: 4)",
						"default":     defaultWeeks,
						"minimum":     1,
						"maximum":     maxWeeks,
					},
				},
			},
		},
		{
			Name:        "analyze_pace_trends",
			Description: "Analyze pace trends over recent runs",
			InputSchema: MCPInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"days": map[string]interface{}{
						"type":        "integer",
						"description": "Number of days back to analyze (default: 30)",
						"default":     defaultDays,
						"minimum":     1,
						"maximum":     maxDays,
					},
				},
			},
		},
	}
}

// defineMCPResources defines the available MCP resources
func defineMCPResources() []MCPResource {
	return []MCPResource{
		{
			URI:         "strava://athlete/profile",
			Name:        "Athlete Profile",
			Description: "Basic profile of the authenticated athlete",
			MimeType:    "application/json",
		},
		{
			URI:         "strava://activities/recent",
			Name:        "Recent Activities",
			Description: "Raw activity data for the last 7 days",
			MimeType:    "application/json",
		},
	}
}

// executeTool executes a specific tool with the given arguments
func (s *MCPServer) executeTool(ctx context.Context, toolName string, arguments json.RawMessage) (string, error) {
	switch toolName {
	case "get_recent_runs":
		return s.executeRecentRunsTool(ctx, arguments)
	case "get_weekly_mileage":
		return s.executeWeeklyMileageTool(ctx, arguments)
	case "analyze_pace_trends":
		return s.executePaceTrendsTool(ctx, arguments)
	default:
		return "", fmt.Errorf("unknown tool: %s", toolName)
	}
}

// executeRecentRunsTool lists runs from the last N days with distance, pace
// and duration.
func (s *MCPServer) executeRecentRunsTool(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input RecentRunsInput
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &input); err != nil {
			return "", &ValidationError{Param: "days", Message: "must be an integer"}
		}
	}

	days, err := validateWindow("days", input.Days, defaultDays, maxDays)
	if err != nil {
		return "", err
	}

	after := time.Now().AddDate(0, 0, -days)
	activities, err := s.stravaClient.ListActivities(ctx, after)
	if err != nil {
		return "", err
	}

	runs := filterRuns(activities)
	if len(runs) == 0 {
		return "No running activities found in the specified period.", nil
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Found %d running activities in the last %d days:\n\n", len(runs), days)
	for _, run := range runs {
		fmt.Fprintf(&b, "• %s: %s\n", run.StartDateLocal.Format("2006-01-02"), run.Name)
		fmt.Fprintf(&b, "  Distance: %.2f miles\n", metersToMiles(run.Distance))
		fmt.Fprintf(&b, "  Avg Pace: %s/mile\n", formatPace(paceSecondsPerMile(run.AverageSpeed)))
		fmt.Fprintf(&b, "  Duration: %s\n\n", formatDuration(run.ElapsedTime))
	}

	return b.String(), nil
}

// executeWeeklyMileageTool sums run distances per ISO week, oldest week
// first, including empty weeks.
func (s *MCPServer) executeWeeklyMileageTool(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input WeeklyMileageInput
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &input); err != nil {
			return "", &ValidationError{Param: "weeks", Message: "must be an integer"}
		}
	}

	weeks, err := validateWindow("weeks", input.Weeks, defaultWeeks, maxWeeks)
	if err != nil {
		return "", err
	}

	now := time.Now()
	after := weekStart(now).AddDate(0, 0, -7*(weeks-1))
	activities, err := s.stravaClient.ListActivities(ctx, after)
	if err != nil {
		return "", err
	}

	reports := s.analyzer.WeeklyMileage(filterRuns(activities), weeks, now)

	var b bytes.Buffer
	fmt.Fprintf(&b, "Weekly mileage for the last %d weeks:\n\n", weeks)

	total := 0.0
	for _, report := range reports {
		fmt.Fprintf(&b, "Week of %s: %.1f miles (%d runs)\n",
			report.WeekStart.Format("2006-01-02"), report.TotalMiles, report.RunCount)
		total += report.TotalMiles
	}

	fmt.Fprintf(&b, "\nTotal: %.1f miles\n", total)
	fmt.Fprintf(&b, "Average per week: %.1f miles", total/float64(len(reports)))

	return b.String(), nil
}

// executePaceTrendsTool lists per-run paces and reports the overall trend
// direction.
func (s *MCPServer) executePaceTrendsTool(ctx context.Context, arguments json.RawMessage) (string, error) {
	var input PaceTrendsInput
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &input); err != nil {
			return "", &ValidationError{Param: "days", Message: "must be an integer"}
		}
	}

	days, err := validateWindow("days", input.Days, defaultDays, maxDays)
	if err != nil {
		return "", err
	}

	after := time.Now().AddDate(0, 0, -days)
	activities, err := s.stravaClient.ListActivities(ctx, after)
	if err != nil {
		return "", err
	}

	runs := filterRuns(activities)
	report := s.analyzer.PaceTrend(runs)
	report.PeriodDays = days
	if report.RunCount == 0 {
		return "No running activities with pace data found.", nil
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "Pace analysis for the last %d days:\n\n", days)
	for _, run := range runs {
		if run.AverageSpeed <= 0 {
			continue
		}
		fmt.Fprintf(&b, "%s: %s/mile (%.1fmi)\n",
			run.StartDateLocal.Format("01/02"),
			formatPace(paceSecondsPerMile(run.AverageSpeed)),
			metersToMiles(run.Distance))
	}

	fmt.Fprintf(&b, "\nAverage pace: %s/mile\n", report.AveragePace)
	if report.FirstHalfPace != "" {
		fmt.Fprintf(&b, "First half avg: %s/mile, second half avg: %s/mile\n",
			report.FirstHalfPace, report.SecondHalfPace)
	}
	fmt.Fprintf(&b, "Trend: %s", report.Trend)

	return b.String(), nil
}

// readResource reads a specific resource
func (s *MCPServer) readResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "strava://athlete/profile":
		athlete, err := s.stravaClient.GetAthlete(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get athlete profile: %w", err)
		}
		data, err := json.MarshalIndent(athlete, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal athlete data: %w", err)
		}
		return string(data), nil

	case "strava://activities/recent":
		after := time.Now().AddDate(0, 0, -7)
		activities, err := s.stravaClient.ListActivities(ctx, after)
		if err != nil {
			return "", fmt.Errorf("failed to list recent activities: %w", err)
		}
		data, err := json.MarshalIndent(activities, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal activity data: %w", err)
		}
		return string(data), nil

	default:
		return "", fmt.Errorf("unknown resource URI: %s", uri)
	}
}

// filterRuns keeps only running activities, preserving order.
func filterRuns(activities []Activity) []Activity {
	runs := make([]Activity, 0, len(activities))
	for _, act := range activities {
		if act.IsRun() {
			runs = append(runs, act)
		}
	}
	return runs
}
