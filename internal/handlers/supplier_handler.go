package handlers

import (
	"net/http"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/pkg/utils"
)

type SupplierHandler struct {
	Repo *repositories.SupplierRepository
}

func NewSupplierHandler(repo *repositories.SupplierRepository) *SupplierHandler {
	return &SupplierHandler{Repo: repo}
}

func (h *SupplierHandler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var s models.Supplier
	if err := decodeBody(w, r, &s); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	id, err := h.Repo.Create(r.Context(), &s)
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

func (h *SupplierHandler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	s, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, s)
}

func (h *SupplierHandler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.Repo.GetAll(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, suppliers)
}

func (h *SupplierHandler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var patch models.SupplierPatch
	if err := decodeBody(w, r, &patch); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.Repo.Update(r.Context(), id, patch); err != nil {
		utils.Error(w, err)
		return
	}
	s, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, s)
}

func (h *SupplierHandler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
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
