package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"ledger-backend/internal/db"
	"ledger-backend/internal/models"
	"ledger-backend/internal/timeutil"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const broadcastBuffer = 256

// Message is what connected clients receive.
type Message struct {
	Type   string              `json:"type"` // change, alert, stats
	Change *models.ChangeEvent `json:"change,omitempty"`
	Alert  *Alert              `json:"alert,omitempty"`
	Stats  *HostStats          `json:"stats,omitempty"`
}

type Alert struct {
	ID        int       `json:"id"`
	Severity  string    `json:"severity"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type HostStats struct {
	StorageStatus string    `json:"storage_status"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsed    string    `json:"memory_used"`
	MemoryTotal   string    `json:"memory_total"`
	DiskPercent   float64   `json:"disk_percent"`
	DiskUsed      string    `json:"disk_used"`
	DiskTotal     string    `json:"disk_total"`
	Clients       int       `json:"clients"`
	CollectedAt   time.Time `json:"collected_at"`
}

// StatusSource reports and announces storage status changes.
type StatusSource interface {
	Health() db.Status
	Err() error
	Subscribe(fn func(db.Status))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub pushes change events, storage alerts and host stats to websocket clients.
type Hub struct {
	storage  StatusSource
	dataDir  string
	interval time.Duration

	alerts    []Alert
	alertsMux sync.RWMutex

	clients    map[*websocket.Conn]bool
	clientsMux sync.Mutex
	broadcast  chan Message
}

func NewHub(storage StatusSource, dataDir string, interval time.Duration) *Hub {
	h := &Hub{
		storage:   storage,
		dataDir:   dataDir,
		interval:  interval,
		alerts:    make([]Alert, 0),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, broadcastBuffer),
	}
	if storage != nil {
		storage.Subscribe(h.onStorageStatus)
	}
	return h
}

// Run delivers queued messages and periodic host stats until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.interval > 0 {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case msg := <-h.broadcast:
			h.send(msg)
		case <-tick:
			stats := h.CollectStats()
			h.send(Message{Type: "stats", Stats: &stats})
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Publish queues a change event. Events are dropped when the queue is full.
func (h *Hub) Publish(ev models.ChangeEvent) {
	h.enqueue(Message{Type: "change", Change: &ev})
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("[Monitor] broadcast queue full, dropping %s message", msg.Type)
	}
}

func (h *Hub) onStorageStatus(status db.Status) {
	switch status {
	case db.StatusFailed:
		msg := "Local database failed to open"
		if h.storage != nil && h.storage.Err() != nil {
			msg = fmt.Sprintf("Local database failed to open: %v", h.storage.Err())
		}
		h.raise("critical", "storage_failed", msg)
	case db.StatusReady:
		h.raise("info", "storage_ready", "Local database is ready")
	}
}

func (h *Hub) raise(severity, kind, message string) {
	h.alertsMux.Lock()
	alert := Alert{
		ID:        len(h.alerts) + 1,
		Severity:  severity,
		Type:      kind,
		Message:   message,
		Timestamp: timeutil.Now(),
	}
	h.alerts = append(h.alerts, alert)
	h.alertsMux.Unlock()

	h.enqueue(Message{Type: "alert", Alert: &alert})
}

// Alerts returns every alert raised so far.
func (h *Hub) Alerts() []Alert {
	h.alertsMux.RLock()
	defer h.alertsMux.RUnlock()
	out := make([]Alert, len(h.alerts))
	copy(out, h.alerts)
	return out
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	return len(h.clients)
}

// CollectStats samples host resource usage.
func (h *Hub) CollectStats() HostStats {
	stats := HostStats{CollectedAt: timeutil.Now(), Clients: h.ClientCount()}
	if h.storage != nil {
		stats.StorageStatus = h.storage.Health().String()
	}

	if cpuPercents, err := cpu.Percent(0, false); err == nil && len(cpuPercents) > 0 {
		stats.CPUPercent = cpuPercents[0]
	}
	if memStats, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = memStats.UsedPercent
		stats.MemoryUsed = formatBytes(memStats.Used)
		stats.MemoryTotal = formatBytes(memStats.Total)
	}
	path := h.dataDir
	if path == "" {
		path = "/"
	}
	if diskStats, err := disk.Usage(path); err == nil {
		stats.DiskPercent = diskStats.UsedPercent
		stats.DiskUsed = formatBytes(diskStats.Used)
		stats.DiskTotal = formatBytes(diskStats.Total)
	}
	return stats
}

func formatBytes(bytes uint64) string {
	gb := float64(bytes) / (1024 * 1024 * 1024)
	if gb < 1 {
		mb := float64(bytes) / (1024 * 1024)
		return fmt.Sprintf("%.1f MB", mb)
	}
	return fmt.Sprintf("%.1f GB", gb)
}

// HandleStats handles GET /api/monitoring/stats
func (h *Hub) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.CollectStats())
}

// HandleAlerts handles GET /api/monitoring/alerts
func (h *Hub) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Alerts())
}

// HandleWebSocket handles GET /ws
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Monitor] WebSocket upgrade error:", err)
		return
	}
	defer conn.Close()

	h.clientsMux.Lock()
	h.clients[conn] = true
	h.clientsMux.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.clientsMux.Lock()
			delete(h.clients, conn)
			h.clientsMux.Unlock()
			return
		}
	}
}

func (h *Hub) send(msg Message) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteJSON(msg); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAll() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
