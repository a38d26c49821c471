package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Println("Usage: go run ./cmd/refresh_token <client_id> <client_secret> <refresh_token>")
		fmt.Println("")
		fmt.Println("This will use your refresh token to get a new access token.")
		fmt.Println("Strava rotates refresh tokens, so the .env is updated with the new one.")
		return
	}

	clientID := os.Args[1]
	clientSecret := os.Args[2]
	refreshToken := os.Args[3]

	fmt.Println("🔄 Refreshing access token...")

	// Prepare the token refresh request
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", clientID)
	data.Set("client_secret", clientSecret)

	req, err := http.NewRequest("POST", "https://www.strava.com/oauth/token", strings.NewReader(data.Encode()))
	if err != nil {
		fmt.Printf("❌ Error creating request: %v\n", err)
		return
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("❌ Error making token refresh request: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("❌ Error reading response: %v\n", err)
		return
	}

	if resp.StatusCode != 200 {
		fmt.Printf("❌ Token refresh failed (status %d):\n%s\n", resp.StatusCode, string(body))
		fmt.Println("")
		fmt.Println("Common issues:")
		fmt.Println("- Refresh token revoked (re-authorize with ./cmd/get_token)")
		fmt.Println("- Invalid client credentials")
		fmt.Println("- Refresh token superseded by a rotated one")
		return
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresAt    int64  `json:"expires_at"`
		ExpiresIn    int    `json:"expires_in"`
	}

	if err := json.Unmarshal(body, &tokenResp); err != nil {
		fmt.Printf("❌ Error parsing token response: %v\n", err)
		return
	}

	fmt.Println("✅ Successfully refreshed tokens!")
	fmt.Println("")
	fmt.Println("📝 Your new tokens:")
	fmt.Printf("Access Token:  %s\n", tokenResp.AccessToken)
	if tokenResp.RefreshToken != "" {
		fmt.Printf("Refresh Token: %s\n", tokenResp.RefreshToken)
	}
	fmt.Printf("Expires in:    %d seconds (%.1f hours)\n", tokenResp.ExpiresIn, float64(tokenResp.ExpiresIn)/3600)

	// Write to .env file
	newRefresh := tokenResp.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	writeEnvFile(clientID, clientSecret, newRefresh)
}

func writeEnvFile(clientID, clientSecret, refreshToken string) {
	envContent := fmt.Sprintf(`# Strava MCP Server Configuration

# Required: Strava API application credentials
STRAVA_CLIENT_ID=%s
STRAVA_CLIENT_SECRET=%s

# Required: Refresh token (the server exchanges it for access tokens itself)
STRAVA_REFRESH_TOKEN=%s

# Optional: Custom API base URL (defaults to production)
# STRAVA_API_BASE_URL=https://www.strava.com/api/v3

# Optional: Rate limiting configuration (requests per minute)
# STRAVA_RATE_LIMIT=60

# Optional: Request timeout in seconds
# STRAVA_REQUEST_TIMEOUT=30
`, clientID, clientSecret, refreshToken)

	err := os.WriteFile(".env", []byte(envContent), 0600)
	if err != nil {
		fmt.Printf("⚠️  Could not write .env file: %v\n", err)
		fmt.Println("Please update .env manually with the refresh token above.")
	} else {
		fmt.Println("✅ Updated .env file with your new refresh token!")
		fmt.Println("")
		fmt.Println("🚀 Your MCP server is now ready to use!")
	}
}
