package websocket

import (
	"encoding/json"
	"sync"
)

// BalanceUpdate is pushed to a user's open sockets after any settlement
// operation changes one of their balances.
type BalanceUpdate struct {
	Kind     string `json:"kind"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// WithdrawalUpdate notifies a user that their withdrawal reached a terminal
// status, so clients can stop polling.
type WithdrawalUpdate struct {
	Kind         string `json:"kind"`
	WithdrawalID string `json:"withdrawal_id"`
	Status       string `json:"status"`
	TxHash       string `json:"tx_hash,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	update.Kind = "balance"
	h.broadcast(userID, update)
}

func (h *Hub) BroadcastWithdrawal(userID string, update WithdrawalUpdate) {
	update.Kind = "withdrawal"
	h.broadcast(userID, update)
}

func (h *Hub) broadcast(userID string, update any) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
