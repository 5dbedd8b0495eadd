package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"supportchat/internal/app"
	"supportchat/internal/config"
)

const shutdownTimeout = 30 * time.Second

// FUNCTIONAL DISCOVERY: Main entry point with comprehensive error handling and signal management
// Graceful shutdown on SIGINT/SIGTERM ends active chats and flushes the ledger
func main() {
	application, err := setup(os.Getenv("SUPPORTCHAT_CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}

	if err := application.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"supportchat": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return application.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// ARCHITECTURAL DISCOVERY: Separate setup function enables testing without signals
// Configuration precedence: file > env (.env included) > defaults
func setup(configPath string) (*app.Application, error) {
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return application, nil
}
