package health

import (
	"context"
	"time"

	"ledger-backend/internal/cache"
	"ledger-backend/internal/db"

	"github.com/shirou/gopsutil/v3/disk"
)

// StorageSource is the part of the storage provider the checker reads.
type StorageSource interface {
	Health() db.Status
	HandleIfReady() *db.Handle
	Err() error
}

type HealthChecker struct {
	storage StorageSource
	dataDir string
}

type HealthStatus struct {
	Status   string         `json:"status"`
	Database DatabaseHealth `json:"database"`
	Redis    string         `json:"redis"`
	Disk     *DiskHealth    `json:"disk,omitempty"`
}

type DatabaseHealth struct {
	Status        string `json:"status"`
	Provider      string `json:"provider"`
	SchemaVersion int    `json:"schema_version,omitempty"`
	ResponseTime  int64  `json:"response_time_ms"`
	Error         string `json:"error,omitempty"`
}

type DiskHealth struct {
	Path        string  `json:"path"`
	UsedPercent float64 `json:"used_percent"`
	FreeBytes   uint64  `json:"free_bytes"`
}

func NewHealthChecker(storage StorageSource, dataDir string) *HealthChecker {
	return &HealthChecker{storage: storage, dataDir: dataDir}
}

// CheckBasic reports liveness plus storage state. Redis is optional and never
// makes the process unhealthy.
func (h *HealthChecker) CheckBasic() HealthStatus {
	dbHealth := h.checkDatabase()

	status := "healthy"
	switch dbHealth.Provider {
	case db.StatusFailed.String():
		status = "unhealthy"
	case db.StatusNotReady.String():
		status = "starting"
	default:
		if dbHealth.Status != "healthy" {
			status = "unhealthy"
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	redisStatus := "disabled"
	if cache.GetClient() != nil {
		redisStatus = "unhealthy"
		if cache.Healthy(ctx) {
			redisStatus = "healthy"
		}
	}

	return HealthStatus{
		Status:   status,
		Database: dbHealth,
		Redis:    redisStatus,
		Disk:     h.checkDisk(),
	}
}

// Ready reports whether the storage handle can serve requests.
func (h *HealthChecker) Ready() bool {
	return h.storage.Health() == db.StatusReady && h.checkDatabase().Status == "healthy"
}

func (h *HealthChecker) checkDatabase() DatabaseHealth {
	out := DatabaseHealth{Provider: h.storage.Health().String()}
	if err := h.storage.Err(); err != nil {
		out.Error = err.Error()
	}
	handle := h.storage.HandleIfReady()
	if handle == nil {
		out.Status = "unavailable"
		return out
	}
	out.SchemaVersion = handle.SchemaVersion()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := handle.Ping(ctx)
	out.ResponseTime = time.Since(start).Milliseconds()
	if err != nil {
		out.Status = "unhealthy"
		out.Error = err.Error()
		return out
	}
	out.Status = "healthy"
	return out
}

func (h *HealthChecker) checkDisk() *DiskHealth {
	if h.dataDir == "" {
		return nil
	}
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		return nil
	}
	return &DiskHealth{Path: h.dataDir, UsedPercent: usage.UsedPercent, FreeBytes: usage.Free}
}
