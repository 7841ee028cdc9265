package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"ledger-backend/internal/services"
	"ledger-backend/internal/timeutil"
	"ledger-backend/pkg/utils"
)

type ReportHandler struct {
	Service *services.ReportService
}

func NewReportHandler(service *services.ReportService) *ReportHandler {
	return &ReportHandler{Service: service}
}

// GetTripStatementPDF handles GET /api/reports/trips/{id}.pdf
func (h *ReportHandler) GetTripStatementPDF(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	pdfData, err := h.Service.TripStatementPDF(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}

	filename := fmt.Sprintf("trip_%d_%s.pdf", id, timeutil.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(pdfData)
}

// GetDebtsCSV handles GET /api/reports/debts.csv
func (h *ReportHandler) GetDebtsCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Service.WriteDebtsCSV(r.Context(), &buf); err != nil {
		utils.Error(w, err)
		return
	}

	filename := fmt.Sprintf("debts_%s.csv", timeutil.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(buf.Bytes())
}
