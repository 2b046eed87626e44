package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	clog "cosmossdk.io/log"

	"github.com/openalpha/credit-engine/api"
)

func main() {
	// Command line flags
	host := flag.String("host", "0.0.0.0", "Server host")
	port := flag.Int("port", 8080, "Server port")
	mockMode := flag.Bool("mock", false, "Serve settable mock data instead of keeper state")
	benchMode := flag.Bool("bench", false, "Disable rate limiting")
	flag.Parse()

	config := &api.Config{
		Host:             *host,
		Port:             *port,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		SnapshotInterval: time.Second,
		DisableRateLimit: *benchMode,
	}

	var service api.Service
	if *mockMode {
		service = api.NewMockService()
		log.Println("Using MockService (no chain state)")
	} else {
		keeperService, err := api.NewStandaloneService(clog.NewNopLogger())
		if err != nil {
			log.Fatalf("Failed to create standalone service: %v", err)
		}
		service = keeperService
		log.Println("Using standalone keeper service (in-memory store, devnet collaborators)")
	}

	server := api.NewServer(config, service)

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Credit engine monitor API started on %s:%d", *host, *port)
	log.Printf("WebSocket endpoint: ws://%s:%d/ws", *host, *port)
	log.Printf("Health check: http://%s:%d/health", *host, *port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server exited")
}
