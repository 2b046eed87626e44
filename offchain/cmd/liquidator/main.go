package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openalpha/credit-engine/offchain/liquidator"
)

// Config holds the application configuration
type Config struct {
	APIBaseURL     string        `json:"api_base_url"`
	GRPCAddr       string        `json:"grpc_addr"`
	ChainID        string        `json:"chain_id"`
	PollInterval   time.Duration `json:"poll_interval"`
	SubmitInterval time.Duration `json:"submit_interval"`
	BatchSize      int           `json:"batch_size"`
	LiquidateLimit int           `json:"liquidate_limit"`
	Cooldown       time.Duration `json:"cooldown"`
	SubmitterType  string        `json:"submitter_type"` // "mock" or "grpc"
	PrivKeyHex     string        `json:"priv_key_hex"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:     "http://localhost:8081",
		GRPCAddr:       "localhost:9090",
		ChainID:        "creditengine-1",
		PollInterval:   time.Second,
		SubmitInterval: 500 * time.Millisecond,
		BatchSize:      50,
		LiquidateLimit: 100,
		Cooldown:       10 * time.Second,
		SubmitterType:  "mock",
	}
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func main() {
	var (
		configPath    string
		apiURL        string
		grpcAddr      string
		pollInterval  time.Duration
		batchSize     int
		submitterType string
		privKeyHex    string
	)

	rootCmd := &cobra.Command{
		Use:   "liquidator",
		Short: "Keeper bot executing trigger orders and deleveraging unhealthy accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Override with command line flags
			if apiURL != "" {
				config.APIBaseURL = apiURL
			}
			if grpcAddr != "" {
				config.GRPCAddr = grpcAddr
			}
			if pollInterval > 0 {
				config.PollInterval = pollInterval
			}
			if batchSize > 0 {
				config.BatchSize = batchSize
			}
			if submitterType != "" {
				config.SubmitterType = submitterType
			}
			if privKeyHex != "" {
				config.PrivKeyHex = privKeyHex
			}

			return run(config)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.Flags().StringVar(&apiURL, "api", "", "Monitor API base URL")
	rootCmd.Flags().StringVar(&grpcAddr, "grpc", "", "Chain gRPC address")
	rootCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Monitor poll interval")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Maximum jobs per batch")
	rootCmd.Flags().StringVar(&submitterType, "submitter", "", "Submitter type (mock or grpc)")
	rootCmd.Flags().StringVar(&privKeyHex, "priv-key", "", "Hex-encoded signing key (grpc submitter)")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(config *Config) error {
	log.Println("=== Credit Engine Liquidator ===")
	log.Printf("Monitor API: %s", config.APIBaseURL)
	log.Printf("Chain gRPC: %s", config.GRPCAddr)
	log.Printf("Poll Interval: %v", config.PollInterval)
	log.Printf("Batch Size: %d", config.BatchSize)
	log.Printf("Submitter: %s", config.SubmitterType)
	log.Println("================================")

	factory := liquidator.NewSubmitterFactory()
	submitter, err := factory.Create(config.SubmitterType, &liquidator.GRPCSubmitterConfig{
		GRPCAddr:   config.GRPCAddr,
		ChainID:    config.ChainID,
		PrivKeyHex: config.PrivKeyHex,
	})
	if err != nil {
		return fmt.Errorf("failed to create submitter: %w", err)
	}

	monitor := liquidator.NewHTTPMonitorClient(config.APIBaseURL, 0)

	botConfig := &liquidator.Config{
		PollInterval:   config.PollInterval,
		SubmitInterval: config.SubmitInterval,
		APIBaseURL:     config.APIBaseURL,
		GRPCAddr:       config.GRPCAddr,
		BatchSize:      config.BatchSize,
		LiquidateLimit: config.LiquidateLimit,
		Cooldown:       config.Cooldown,
	}
	bot := liquidator.NewLiquidator(botConfig, monitor, submitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("failed to start liquidator: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	log.Println("Liquidator is running. Press Ctrl+C to stop.")

	for {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
			if err := bot.Stop(); err != nil {
				log.Printf("Error stopping liquidator: %v", err)
			}
			log.Println("Liquidator stopped")
			return nil
		case <-statsTicker.C:
			stats := bot.GetStats()
			log.Printf("Stats: Rounds=%d, Pending=%d, Submitted=%d, Failed=%d, Watchlist=%d",
				stats.PolledRounds, stats.PendingJobs, stats.SubmittedJobs, stats.FailedJobs, stats.WatchlistSize)
		}
	}
}
