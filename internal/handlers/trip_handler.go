package handlers

import (
	"net/http"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/internal/services"
	"ledger-backend/pkg/utils"
)

type TripHandler struct {
	Repo       *repositories.TripRepository
	Orders     *repositories.OrderRepository
	Expenses   *repositories.TripExpenseRepository
	Reconciler *services.ReconciliationService
}

func NewTripHandler(repo *repositories.TripRepository, orders *repositories.OrderRepository,
	expenses *repositories.TripExpenseRepository, reconciler *services.ReconciliationService) *TripHandler {
	return &TripHandler{Repo: repo, Orders: orders, Expenses: expenses, Reconciler: reconciler}
}

func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var t models.Trip
	if err := decodeBody(w, r, &t); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	id, err := h.Repo.Create(r.Context(), &t)
	if err != nil {
		utils.Error(w, err)
		return
	}
	created, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, created)
}

func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	t, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, t)
}

func (h *TripHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := h.Repo.GetAll(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, trips)
}

func (h *TripHandler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var patch models.TripPatch
	if err := decodeBody(w, r, &patch); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.Repo.Update(r.Context(), id, patch); err != nil {
		utils.Error(w, err)
		return
	}
	t, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, t)
}

func (h *TripHandler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
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

// LinkOrders handles POST /api/trips/{id}/orders. Either every order is
// linked or none is.
func (h *TripHandler) LinkOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var req models.LinkOrdersRequest
	if err := decodeBody(w, r, &req); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	if len(req.OrderIDs) == 0 {
		utils.BadRequest(w, "order_ids is required")
		return
	}
	orders, err := h.Reconciler.LinkOrdersToTrip(r.Context(), id, req.OrderIDs)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, orders)
}

// ListTripOrders handles GET /api/trips/{id}/orders
func (h *TripHandler) ListTripOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	if _, err := h.Repo.GetByID(r.Context(), id); err != nil {
		utils.Error(w, err)
		return
	}
	orders, err := h.Orders.ListByTrip(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, orders)
}

// ListTripExpenses handles GET /api/trips/{id}/expenses
func (h *TripHandler) ListTripExpenses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	expenses, err := h.Expenses.ListByTrip(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, expenses)
}

// RecomputeTrip handles POST /api/trips/{id}/recompute
func (h *TripHandler) RecomputeTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	t, err := h.Reconciler.RecomputeTripStatus(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, t)
}

// GetTripSummary handles GET /api/trips/{id}/summary
func (h *TripHandler) GetTripSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	summary, err := h.Repo.Summary(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, summary)
}
