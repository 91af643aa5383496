package realtime

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"sync"
)

type Client struct {
	ID     string
	UserID string
	Send   chan []byte
	tables map[string]struct{}
}

func NewClient(id, userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 16
	}
	return &Client{ID: id, UserID: userID, Send: make(chan []byte, buffer)}
}

func (c *Client) wants(table string) bool {
	_, ok := c.tables[table]
	return ok
}

type rowKey struct {
	table string
	id    string
}

const defaultVersionLimit = 10000

type rowVersion struct {
	key     rowKey
	version int64
}

// Hub fans changes out to connected clients. UPDATE events that are not newer than the
// last delivered version of the same row are dropped. At most versionLimit rows are
// tracked; the least recently changed row is forgotten first.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*Client
	vmu          sync.Mutex
	versions     map[rowKey]*list.Element
	recent       *list.List
	versionLimit int
	logger       *slog.Logger
}

type HubOption func(*Hub)

// WithVersionLimit caps the number of rows whose last version is remembered.
func WithVersionLimit(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.versionLimit = n
		}
	}
}

func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:      make(map[string]*Client),
		versions:     make(map[rowKey]*list.Element),
		recent:       list.New(),
		versionLimit: defaultVersionLimit,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, tables []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}
	client.tables = set
}

func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.tables = nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// accept applies the per-row version ordering and reports whether the change should go out.
func (h *Hub) accept(change Change) bool {
	if change.RecordID == "" {
		return true
	}
	key := rowKey{table: change.Table, id: change.RecordID}

	h.vmu.Lock()
	defer h.vmu.Unlock()

	el, known := h.versions[key]
	switch change.EventType {
	case EventDelete:
		if known {
			h.recent.Remove(el)
			delete(h.versions, key)
		}
		return true
	case EventUpdate:
		if known && change.Version <= el.Value.(*rowVersion).version {
			return false
		}
	}
	if change.Version > 0 {
		h.remember(key, change.Version)
	}
	return true
}

func (h *Hub) remember(key rowKey, version int64) {
	if el, ok := h.versions[key]; ok {
		el.Value.(*rowVersion).version = version
		h.recent.MoveToFront(el)
		return
	}
	h.versions[key] = h.recent.PushFront(&rowVersion{key: key, version: version})
	for h.recent.Len() > h.versionLimit {
		oldest := h.recent.Back()
		h.recent.Remove(oldest)
		delete(h.versions, oldest.Value.(*rowVersion).key)
	}
}

// TrackedRows reports how many row versions the hub currently remembers.
func (h *Hub) TrackedRows() int {
	h.vmu.Lock()
	defer h.vmu.Unlock()
	return len(h.versions)
}

// Broadcast never blocks: a client whose buffer is full misses the message.
func (h *Hub) Broadcast(change Change) {
	if !h.accept(change) {
		h.logger.Debug("dropping stale change",
			"table", change.Table,
			"id", change.RecordID,
			"version", change.Version)
		return
	}

	payload, err := json.Marshal(change)
	if err != nil {
		h.logger.Error("failed to marshal change", "error", err, "table", change.Table)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !client.wants(change.Table) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("drop message for client", "client_id", client.ID, "table", change.Table)
		}
	}
}

type SubscribeMessage struct {
	Action string   `json:"action"`
	Tables []string `json:"tables"`
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
