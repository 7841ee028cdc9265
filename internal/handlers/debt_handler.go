package handlers

import (
	"net/http"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/internal/services"
	"ledger-backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// DebtHandler serves the derived debt view and ledger-wide reconciliation.
type DebtHandler struct {
	Orders     *repositories.OrderRepository
	Reconciler *services.ReconciliationService
}

func NewDebtHandler(orders *repositories.OrderRepository, reconciler *services.ReconciliationService) *DebtHandler {
	return &DebtHandler{Orders: orders, Reconciler: reconciler}
}

type debtsResponse struct {
	Debts []models.DebtView `json:"debts"`
	Total decimal.Decimal   `json:"total"`
}

// GetDebts handles GET /api/debts with an optional customer_id filter.
func (h *DebtHandler) GetDebts(w http.ResponseWriter, r *http.Request) {
	customerID, err := queryID(r, "customer_id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	debts, err := h.Orders.Debts(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}

	resp := debtsResponse{Debts: []models.DebtView{}, Total: decimal.Zero}
	for _, d := range debts {
		if customerID > 0 && d.CustomerID != customerID {
			continue
		}
		resp.Debts = append(resp.Debts, d)
		resp.Total = resp.Total.Add(d.Debt)
	}
	utils.JSON(w, http.StatusOK, resp)
}

// ReconcileAll handles POST /api/reconcile
func (h *DebtHandler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reconciler.ReconcileAll(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, report)
}
