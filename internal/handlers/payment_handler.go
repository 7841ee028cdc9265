package handlers

import (
	"net/http"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/internal/services"
	"ledger-backend/pkg/utils"
)

type PaymentHandler struct {
	Repo       *repositories.PaymentRepository
	Reconciler *services.ReconciliationService
}

func NewPaymentHandler(repo *repositories.PaymentRepository, reconciler *services.ReconciliationService) *PaymentHandler {
	return &PaymentHandler{Repo: repo, Reconciler: reconciler}
}

// ProcessPayment handles POST /api/payments
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req models.ProcessPaymentRequest
	if err := decodeBody(w, r, &req); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	if req.OrderID <= 0 || req.TripID <= 0 {
		utils.BadRequest(w, "order_id and trip_id are required")
		return
	}
	p, err := h.Reconciler.ProcessPayment(r.Context(), req)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, p)
}

// ListPayments handles GET /api/payments with optional order_id or trip_id.
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	orderID, err := queryID(r, "order_id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	tripID, err := queryID(r, "trip_id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	var payments []*models.Payment
	switch {
	case orderID > 0:
		payments, err = h.Repo.ListByOrder(r.Context(), orderID)
	case tripID > 0:
		payments, err = h.Repo.ListByTrip(r.Context(), tripID)
	default:
		payments, err = h.Repo.GetAll(r.Context())
	}
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, payments)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	p, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, p)
}

// UpdatePayment handles PUT /api/payments/{id}. The ledger is append-only so
// this always answers with the rule that forbids it.
func (h *PaymentHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var patch repositories.PaymentPatch
	if err := decodeBody(w, r, &patch); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	utils.Error(w, h.Repo.Update(r.Context(), id, patch))
}

// ReversePayment handles POST /api/payments/{id}/reverse
func (h *PaymentHandler) ReversePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var req models.ReversePaymentRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			utils.BadRequest(w, "Invalid request body")
			return
		}
	}
	reversal, err := h.Reconciler.ReversePayment(r.Context(), id, req.Note)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, reversal)
}

// DeletePayment handles DELETE /api/payments/{id} by recording a reversal.
func (h *PaymentHandler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	if err := h.Repo.Remove(r.Context(), id); err != nil {
		utils.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
