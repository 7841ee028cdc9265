package handlers

import (
	"net/http"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/internal/services"
	"ledger-backend/pkg/utils"
)

type OrderHandler struct {
	Repo       *repositories.OrderRepository
	Payments   *repositories.PaymentRepository
	Reconciler *services.ReconciliationService
}

func NewOrderHandler(repo *repositories.OrderRepository, payments *repositories.PaymentRepository,
	reconciler *services.ReconciliationService) *OrderHandler {
	return &OrderHandler{Repo: repo, Payments: payments, Reconciler: reconciler}
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var o models.Order
	if err := decodeBody(w, r, &o); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	id, err := h.Repo.Create(r.Context(), &o)
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

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	o, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, o)
}

// ListOrders handles GET /api/orders with optional customer_id, trip_id and
// status filters.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, err := queryID(r, "customer_id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	tripID, err := queryID(r, "trip_id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	var orders []*models.Order
	switch {
	case tripID > 0:
		orders, err = h.Repo.ListByTrip(ctx, tripID)
	case customerID > 0:
		orders, err = h.Repo.ListByCustomer(ctx, customerID)
	default:
		orders, err = h.Repo.GetAll(ctx)
	}
	if err != nil {
		utils.Error(w, err)
		return
	}

	if status := models.OrderStatus(r.URL.Query().Get("status")); status != "" {
		if !status.Valid() {
			utils.BadRequest(w, "invalid status")
			return
		}
		filtered := make([]*models.Order, 0, len(orders))
		for _, o := range orders {
			if o.Status == status {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	utils.JSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var patch models.OrderPatch
	if err := decodeBody(w, r, &patch); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.Repo.Update(r.Context(), id, patch); err != nil {
		utils.Error(w, err)
		return
	}
	o, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, o)
}

func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
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

// UnlinkOrder handles POST /api/orders/{id}/unlink
func (h *OrderHandler) UnlinkOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	o, err := h.Reconciler.UnlinkOrderFromTrip(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, o)
}

// ReconcileOrder handles POST /api/orders/{id}/reconcile
func (h *OrderHandler) ReconcileOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	o, err := h.Reconciler.ReconcileOrder(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, o)
}

// ListOrderPayments handles GET /api/orders/{id}/payments
func (h *OrderHandler) ListOrderPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	if _, err := h.Repo.GetByID(r.Context(), id); err != nil {
		utils.Error(w, err)
		return
	}
	payments, err := h.Payments.ListByOrder(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, payments)
}
