package handlers

import (
	"fmt"
	"net/http"

	"ledger-backend/internal/db"
	"ledger-backend/internal/services"
	"ledger-backend/internal/timeutil"
	"ledger-backend/pkg/utils"

	"github.com/gorilla/mux"
)

// maxImportBytes bounds import uploads.
const maxImportBytes = 32 << 20

type TransferHandler struct {
	Service *services.TransferService
}

func NewTransferHandler(service *services.TransferService) *TransferHandler {
	return &TransferHandler{Service: service}
}

// Export handles GET /api/export/{store}
func (h *TransferHandler) Export(w http.ResponseWriter, r *http.Request) {
	store, ok := db.ParseStore(mux.Vars(r)["store"])
	if !ok {
		utils.BadRequest(w, "unknown store")
		return
	}

	filename := fmt.Sprintf("%s_%s.json", store, timeutil.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if _, err := h.Service.Export(r.Context(), store, w); err != nil {
		w.Header().Del("Content-Disposition")
		utils.Error(w, err)
	}
}

// Import handles POST /api/import/{store}
func (h *TransferHandler) Import(w http.ResponseWriter, r *http.Request) {
	store, ok := db.ParseStore(mux.Vars(r)["store"])
	if !ok {
		utils.BadRequest(w, "unknown store")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	result, err := h.Service.Import(r.Context(), store, r.Body)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, result)
}

// Snapshot handles GET /api/export
func (h *TransferHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.Snapshot(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=ledger_%s.json", timeutil.Now().Format("2006-01-02")))
	utils.JSON(w, http.StatusOK, snap)
}
