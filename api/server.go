package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openalpha/credit-engine/api/middleware"
	"github.com/openalpha/credit-engine/api/websocket"
	"github.com/openalpha/credit-engine/metrics"
)

// Server represents the monitor API server
type Server struct {
	httpServer *http.Server
	wsServer   *websocket.Server
	config     *Config

	service   Service
	collector *metrics.Collector

	// Rate limiter
	rateLimiter *middleware.RateLimiter
}

// Config contains server configuration
type Config struct {
	Host             string
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	SnapshotInterval time.Duration
	DisableRateLimit bool // For testing purposes
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:             "0.0.0.0",
		Port:             8080,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		SnapshotInterval: time.Second,
	}
}

// NewServer creates a new API server over the given service
func NewServer(config *Config, service Service) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	wsConfig := websocket.DefaultServerConfig()
	wsConfig.Port = config.Port

	return &Server{
		config:      config,
		wsServer:    websocket.NewServer(wsConfig),
		service:     service,
		collector:   metrics.GetCollector(),
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check (support both /health and /v1/health)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/health", s.handleHealth)

	// Read-only chain state
	mux.HandleFunc("/v1/markets", s.instrument("/v1/markets", s.handleMarkets))
	mux.HandleFunc("/v1/vault", s.instrument("/v1/vault", s.handleVault))
	mux.HandleFunc("/v1/accounts/", s.instrument("/v1/accounts", s.handleAccount))
	mux.HandleFunc("/v1/liquidatable", s.instrument("/v1/liquidatable", s.handleLiquidatable))
	mux.HandleFunc("/v1/trigger-orders", s.instrument("/v1/trigger-orders", s.handleExecutableTriggerOrders))
	mux.HandleFunc("/v1/trigger-orders/", s.instrument("/v1/trigger-orders", s.handleTriggerOrders))

	// Prometheus
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket
	mux.HandleFunc("/ws", s.wsServer.GetHub().ServeWS)

	// Apply middleware chain: CORS -> RateLimit -> Handler
	if s.config.DisableRateLimit {
		return corsMiddleware(mux)
	}
	return corsMiddleware(middleware.RateLimitMiddleware(s.rateLimiter)(mux))
}

// Start starts the API server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	// Start WebSocket hub
	go s.wsServer.GetHub().Run()

	// Start the snapshot broadcaster
	go s.runBroadcaster()

	log.Printf("API server starting on %s", addr)
	if s.config.DisableRateLimit {
		log.Printf("Rate limiting DISABLED (for testing)")
	}
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// runBroadcaster feeds market and vault snapshots from the service into the
// websocket hub on the configured interval.
func (s *Server) runBroadcaster() {
	interval := s.config.SnapshotInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		now := nowMillis()

		if markets, err := s.service.Markets(ctx); err == nil {
			for _, m := range markets {
				s.wsServer.BroadcastMarket(&websocket.MarketMessage{
					Denom:          m.Denom,
					OraclePrice:    m.OraclePrice,
					LongOI:         m.LongOI,
					ShortOI:        m.ShortOI,
					FundingRate:    m.FundingRate,
					AccruedPerUnit: m.AccruedPerUnit,
					Timestamp:      now,
				})
			}
		}

		if vault, err := s.service.Vault(ctx); err == nil {
			s.wsServer.BroadcastVault(&websocket.VaultMessage{
				TotalLiquidity:        vault.TotalLiquidity,
				TotalShares:           vault.TotalShares,
				WithdrawalBalance:     vault.WithdrawalBalance,
				ShareValue:            vault.ShareValue,
				CollateralizationRate: vault.CollateralizationRate,
				Timestamp:             now,
			})
		}
	}
}

// instrument wraps a handler with request metrics
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		s.collector.RecordAPIRequest(r.Method, path, strconv.Itoa(sw.status), timer.ElapsedMs())
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleMarkets handles GET /v1/markets
func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	markets, err := s.service.Markets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"markets": markets,
	})
}

// handleVault handles GET /v1/vault
func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	vault, err := s.service.Vault(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, vault)
}

// handleAccount handles GET /v1/accounts/{id}/{endpoint}
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	accountID, endpoint, _ := strings.Cut(path, "/")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "Account ID required")
		return
	}

	switch endpoint {
	case "positions":
		positions, err := s.service.AccountPositions(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"positions": positions,
		})

	case "health":
		health, err := s.service.AccountHealth(r.Context(), accountID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, health)

	default:
		writeError(w, http.StatusNotFound, "Endpoint not found")
	}
}

// handleLiquidatable handles GET /v1/liquidatable
func (s *Server) handleLiquidatable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	accounts, err := s.service.Liquidatable(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
	})
}

// handleExecutableTriggerOrders handles GET /v1/trigger-orders?executable=true
func (s *Server) handleExecutableTriggerOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if r.URL.Query().Get("executable") != "true" {
		writeError(w, http.StatusBadRequest, "Listing requires executable=true; per-account orders live under /v1/trigger-orders/{account_id}")
		return
	}

	orders, err := s.service.ExecutableTriggerOrders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
	})
}

// handleTriggerOrders handles GET /v1/trigger-orders/{account_id}
func (s *Server) handleTriggerOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	accountID := strings.TrimPrefix(r.URL.Path, "/v1/trigger-orders/")
	if accountID == "" || strings.Contains(accountID, "/") {
		writeError(w, http.StatusBadRequest, "Account ID required")
		return
	}

	orders, err := s.service.TriggerOrders(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
	})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
