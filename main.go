package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// Set up logging to stderr to avoid interfering with stdio communication
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file if present; real environment variables take precedence
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewMCPServer(cfg)

	log.Println("Starting Strava MCP Server...")
	log.Println("Server ready to accept JSON-RPC 2.0 requests via stdio")

	// Run the server (blocks until stdin is closed or a signal arrives)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Strava MCP Server shutting down")
}
