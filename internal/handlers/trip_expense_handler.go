package handlers

import (
	"net/http"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/pkg/utils"
)

type TripExpenseHandler struct {
	Repo *repositories.TripExpenseRepository
}

func NewTripExpenseHandler(repo *repositories.TripExpenseRepository) *TripExpenseHandler {
	return &TripExpenseHandler{Repo: repo}
}

func (h *TripExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var e models.TripExpense
	if err := decodeBody(w, r, &e); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	id, err := h.Repo.Create(r.Context(), &e)
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

func (h *TripExpenseHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	e, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, e)
}

// ListExpenses handles GET /api/trip-expenses with an optional trip_id filter.
func (h *TripExpenseHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	tripID, err := queryID(r, "trip_id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var expenses []*models.TripExpense
	if tripID > 0 {
		expenses, err = h.Repo.ListByTrip(r.Context(), tripID)
	} else {
		expenses, err = h.Repo.GetAll(r.Context())
	}
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, expenses)
}

func (h *TripExpenseHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var patch models.TripExpensePatch
	if err := decodeBody(w, r, &patch); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.Repo.Update(r.Context(), id, patch); err != nil {
		utils.Error(w, err)
		return
	}
	e, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, e)
}

func (h *TripExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
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
