package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"studyhall/internal/app"
	"studyhall/internal/config"
)

// FUNCTIONAL DISCOVERY: Main entry point with comprehensive error handling and signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run() error {
	configPath := flag.String("config", os.Getenv("STUDYHALL_CONFIG_FILE"), "path to JSON config file")
	baseURL := flag.String("base-url", "", "auth endpoint base URL (overrides config)")
	wsURL := flag.String("ws-url", "", "realtime endpoint URL (overrides config)")
	identifier := flag.String("user", "", "login identifier")
	secret := flag.String("pass", "", "login secret")
	flag.Parse()

	if *identifier == "" || *secret == "" {
		return fmt.Errorf("both -user and -pass are required")
	}

	// STEP 1: Load configuration with precedence (file > env > defaults)
	cfg := config.LoadConfigWithPrecedence(*configPath)
	if *baseURL != "" {
		cfg.Auth.BaseURL = *baseURL
	}
	if *wsURL != "" {
		cfg.Realtime.URL = *wsURL
	}

	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// STEP 3: Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	// STEP 4: Authenticate and bring the realtime channel up
	if err := application.Login(ctx, *identifier, *secret); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	log.Printf("Realtime channel supervised; waiting for notifications")

	router := application.Notifications()

	// STEP 5: Print alerts until shutdown or session end
	for {
		select {
		case alert := <-router.Alerts():
			attempt := ""
			if alert.Event.RelatedAttemptID != nil {
				attempt = fmt.Sprintf(" (attempt %d)", *alert.Event.RelatedAttemptID)
			}
			fmt.Printf("[%s] %s%s\n", alert.Severity, alert.Event.Message, attempt)

		case <-application.Tokens().SessionEnded():
			log.Printf("Session ended, exiting")
			return nil

		case sig := <-signalCh:
			log.Printf("Received signal %v, shutting down gracefully", sig)
			application.Logout()
			return nil
		}
	}
}
