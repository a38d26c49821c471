package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Standalone smoke check for the live Strava API. Run with a valid access
// token, e.g. one printed by ./cmd/refresh_token:
//
//	STRAVA_ACCESS_TOKEN=... go run ./test
func main() {
	accessToken := os.Getenv("STRAVA_ACCESS_TOKEN")
	if accessToken == "" {
		fmt.Println("❌ STRAVA_ACCESS_TOKEN not found in environment")
		return
	}

	fmt.Printf("🔗 Testing Strava API endpoints with token: %s...\n", accessToken[:10])
	fmt.Println()

	// Test 1: Athlete profile
	fmt.Println("1️⃣ Testing Athlete Profile...")
	testEndpoint("https://www.strava.com/api/v3/athlete", accessToken, nil)

	// Test 2: Recent activities (last 7 days)
	fmt.Println("\n2️⃣ Testing Activity Listing...")
	after := time.Now().AddDate(0, 0, -7)
	params := url.Values{}
	params.Set("after", strconv.FormatInt(after.Unix(), 10))
	params.Set("per_page", "5")
	testEndpoint("https://www.strava.com/api/v3/athlete/activities", accessToken, params)
}

func testEndpoint(baseURL string, accessToken string, params url.Values) {
	requestURL := baseURL
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	fmt.Printf("   📡 GET %s\n", requestURL)

	req, err := http.NewRequest("GET", requestURL, nil)
	if err != nil {
		fmt.Printf("   ❌ Error creating request: %v\n", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("   ❌ Request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("   ❌ Error reading response: %v\n", err)
		return
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("   ❌ Status %d: %s\n", resp.StatusCode, string(body))
		return
	}

	var pretty any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Printf("   ⚠️  Non-JSON response: %s\n", string(body))
		return
	}
	formatted, _ := json.MarshalIndent(pretty, "   ", "  ")
	fmt.Printf("   ✅ Status 200\n   %s\n", string(formatted))
}
