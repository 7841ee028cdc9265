package handlers

import (
	"net/http"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/pkg/utils"
)

type CustomerHandler struct {
	Repo   *repositories.CustomerRepository
	Orders *repositories.OrderRepository
}

func NewCustomerHandler(repo *repositories.CustomerRepository, orders *repositories.OrderRepository) *CustomerHandler {
	return &CustomerHandler{Repo: repo, Orders: orders}
}

func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var c models.Customer
	if err := decodeBody(w, r, &c); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}

	id, err := h.Repo.Create(r.Context(), &c)
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

func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	c, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Repo.GetAll(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, customers)
}

func (h *CustomerHandler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var patch models.CustomerPatch
	if err := decodeBody(w, r, &patch); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.Repo.Update(r.Context(), id, patch); err != nil {
		utils.Error(w, err)
		return
	}
	c, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
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

// ListCustomerOrders handles GET /api/customers/{id}/orders
func (h *CustomerHandler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	orders, err := h.Orders.ListByCustomer(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, orders)
}
