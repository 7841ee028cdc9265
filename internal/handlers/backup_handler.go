package handlers

import (
	"net/http"

	"ledger-backend/internal/services"
	"ledger-backend/pkg/utils"
)

type BackupHandler struct {
	Service *services.BackupService
}

func NewBackupHandler(service *services.BackupService) *BackupHandler {
	return &BackupHandler{Service: service}
}

// CreateBackup handles POST /api/backups
func (h *BackupHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	if !h.Service.Enabled() {
		utils.JSON(w, http.StatusServiceUnavailable, utils.ErrorBody{Error: "backups not configured", Code: "BACKUP_DISABLED"})
		return
	}
	obj, err := h.Service.Run(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, obj)
}

// ListBackups handles GET /api/backups
func (h *BackupHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	if !h.Service.Enabled() {
		utils.JSON(w, http.StatusServiceUnavailable, utils.ErrorBody{Error: "backups not configured", Code: "BACKUP_DISABLED"})
		return
	}
	backups, err := h.Service.List(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"backups":     backups,
		"last_backup": h.Service.LastBackup(),
	})
}
