package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by channel
	clients  map[*Client]bool
	channels map[string]map[*Client]bool // channel -> clients

	// Inbound messages from clients
	broadcast chan []byte

	// Register/unregister requests
	register   chan *Client
	unregister chan *Client

	// Channel subscription requests
	subscribe   chan *SubscriptionRequest
	unsubscribe chan *SubscriptionRequest

	// Buffered snapshots pushed on the refresh interval
	marketBuffer map[string]*MarketMessage
	vaultBuffer  *VaultMessage
	healthBuffer map[string]*HealthMessage

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Configuration
	config *HubConfig
}

// HubConfig contains hub configuration
type HubConfig struct {
	// Update interval for buffered snapshots
	SnapshotInterval time.Duration // Default: 500ms

	// Connection limits
	MaxClientsPerIP  int
	MaxSubscriptions int

	// Rate limiting
	MessageRateLimit int // Messages per second per client
}

// DefaultHubConfig returns default hub configuration
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		SnapshotInterval: 500 * time.Millisecond,
		MaxClientsPerIP:  10,
		MaxSubscriptions: 50,
		MessageRateLimit: 100,
	}
}

// SubscriptionRequest represents a subscription request
type SubscriptionRequest struct {
	Client  *Client
	Channel string
	Action  string // "subscribe" or "unsubscribe"
}

// NewHub creates a new Hub
func NewHub(config *HubConfig) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}

	return &Hub{
		clients:      make(map[*Client]bool),
		channels:     make(map[string]map[*Client]bool),
		broadcast:    make(chan []byte, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		subscribe:    make(chan *SubscriptionRequest, 256),
		unsubscribe:  make(chan *SubscriptionRequest, 256),
		marketBuffer: make(map[string]*MarketMessage),
		healthBuffer: make(map[string]*HealthMessage),
		config:       config,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	snapshotTicker := time.NewTicker(h.config.SnapshotInterval)
	defer snapshotTicker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case req := <-h.subscribe:
			h.handleSubscription(req)

		case req := <-h.unsubscribe:
			h.handleUnsubscription(req)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-snapshotTicker.C:
			h.broadcastSnapshots()
		}
	}
}

// registerClient adds a new client
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
}

// unregisterClient removes a client
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)

		// Remove from all channels
		for channel, clients := range h.channels {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.channels, channel)
			}
		}

		close(client.send)
	}
}

// handleSubscription handles a subscription request
func (h *Hub) handleSubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel := req.Channel
	client := req.Client

	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true

	// Send subscription confirmation
	confirmation := &WSMessage{
		Type:    "subscribed",
		Channel: channel,
		Data:    nil,
	}
	data, _ := json.Marshal(confirmation)
	client.send <- data
}

// handleUnsubscription handles an unsubscription request
func (h *Hub) handleUnsubscription(req *SubscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	channel := req.Channel
	client := req.Client

	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}

	// Send unsubscription confirmation
	confirmation := &WSMessage{
		Type:    "unsubscribed",
		Channel: channel,
		Data:    nil,
	}
	data, _ := json.Marshal(confirmation)
	client.send <- data
}

// broadcastMessage sends a message to all clients
func (h *Hub) broadcastMessage(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Client buffer is full, skip
		}
	}
}

// BroadcastToChannel sends a message to all clients subscribed to a channel
func (h *Hub) BroadcastToChannel(channel string, message interface{}) {
	h.mu.RLock()
	clients, ok := h.channels[channel]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Make a copy of clients to avoid holding lock during send
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	for _, client := range clientList {
		select {
		case client.send <- data:
		default:
			// Client buffer is full, skip
		}
	}
}

// ============ Channel-specific broadcasts ============

// UpdateMarket updates the market buffer for a denom
func (h *Hub) UpdateMarket(denom string, market *MarketMessage) {
	h.mu.Lock()
	h.marketBuffer[denom] = market
	h.mu.Unlock()
}

// UpdateVault updates the vault buffer
func (h *Hub) UpdateVault(vault *VaultMessage) {
	h.mu.Lock()
	h.vaultBuffer = vault
	h.mu.Unlock()
}

// UpdateHealth updates the health buffer for an account
func (h *Hub) UpdateHealth(accountID string, health *HealthMessage) {
	h.mu.Lock()
	h.healthBuffer[accountID] = health
	h.mu.Unlock()
}

// broadcastSnapshots flushes the buffered market, vault and health snapshots
func (h *Hub) broadcastSnapshots() {
	h.mu.RLock()
	markets := make(map[string]*MarketMessage, len(h.marketBuffer))
	for k, v := range h.marketBuffer {
		markets[k] = v
	}
	vault := h.vaultBuffer
	healths := make(map[string]*HealthMessage, len(h.healthBuffer))
	for k, v := range h.healthBuffer {
		healths[k] = v
	}
	h.mu.RUnlock()

	for denom, market := range markets {
		channel := "markets:" + denom
		h.BroadcastToChannel(channel, &WSMessage{
			Type:    "market",
			Channel: channel,
			Data:    market,
		})
	}

	if vault != nil {
		h.BroadcastToChannel("vault", &WSMessage{
			Type:    "vault",
			Channel: "vault",
			Data:    vault,
		})
	}

	for accountID, health := range healths {
		channel := "health:" + accountID
		h.BroadcastToChannel(channel, &WSMessage{
			Type:    "health",
			Channel: channel,
			Data:    health,
		})
	}
}

// BroadcastLiquidation pushes a liquidation event to subscribers immediately
func (h *Hub) BroadcastLiquidation(event *LiquidationMessage) {
	h.BroadcastToChannel("liquidations", &WSMessage{
		Type:    "liquidation",
		Channel: "liquidations",
		Data:    event,
	})
}

// BroadcastDeleverage pushes a deleverage event to subscribers immediately
func (h *Hub) BroadcastDeleverage(event *DeleverageMessage) {
	h.BroadcastToChannel("liquidations", &WSMessage{
		Type:    "deleverage",
		Channel: "liquidations",
		Data:    event,
	})
}

// ============ Message Types ============

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Data    interface{} `json:"data,omitempty"`
}

// MarketMessage represents a market snapshot update
type MarketMessage struct {
	Denom          string `json:"denom"`
	OraclePrice    string `json:"oracle_price"`
	LongOI         string `json:"long_oi"`
	ShortOI        string `json:"short_oi"`
	FundingRate    string `json:"funding_rate"`
	AccruedPerUnit string `json:"accrued_per_unit"`
	Timestamp      int64  `json:"timestamp"`
}

// VaultMessage represents a counterparty vault update
type VaultMessage struct {
	TotalLiquidity        string `json:"total_liquidity"`
	TotalShares           string `json:"total_shares"`
	WithdrawalBalance     string `json:"withdrawal_balance"`
	ShareValue            string `json:"share_value"`
	CollateralizationRate string `json:"collateralization_rate,omitempty"`
	Timestamp             int64  `json:"timestamp"`
}

// HealthMessage represents an account health update
type HealthMessage struct {
	AccountID               string `json:"account_id"`
	TotalCollateralValue    string `json:"total_collateral_value"`
	TotalDebtValue          string `json:"total_debt_value"`
	LiquidationHealthFactor string `json:"liquidation_health_factor,omitempty"`
	Liquidatable            bool   `json:"liquidatable"`
	Timestamp               int64  `json:"timestamp"`
}

// LiquidationMessage represents a liquidation event
type LiquidationMessage struct {
	AccountID        string `json:"account_id"`
	Liquidator       string `json:"liquidator"`
	DebtDenom        string `json:"debt_denom"`
	DebtRepaid       string `json:"debt_repaid"`
	CollateralDenom  string `json:"collateral_denom"`
	CollateralSeized string `json:"collateral_seized"`
	Timestamp        int64  `json:"timestamp"`
}

// DeleverageMessage represents a forced deleverage event
type DeleverageMessage struct {
	AccountID string `json:"account_id"`
	Denom     string `json:"denom"`
	Size      string `json:"size"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetChannelCount returns the number of active channels
func (h *Hub) GetChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// GetChannelClientCount returns the number of clients in a channel
func (h *Hub) GetChannelClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.channels[channel]; ok {
		return len(clients)
	}
	return 0
}

// ServeWS handles WebSocket upgrade requests
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := uuid.New().String()
	ip := getClientIPFromRequest(r)

	client := NewClient(h, conn, clientID, ip)

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// Helper function to get client IP
func getClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == ':' {
			return ip[:i]
		}
	}
	return ip
}
