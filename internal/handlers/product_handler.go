package handlers

import (
	"net/http"

	"ledger-backend/internal/models"
	"ledger-backend/internal/repositories"
	"ledger-backend/pkg/utils"
)

type ProductHandler struct {
	Repo *repositories.ProductRepository
}

func NewProductHandler(repo *repositories.ProductRepository) *ProductHandler {
	return &ProductHandler{Repo: repo}
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p models.Product
	if err := decodeBody(w, r, &p); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	id, err := h.Repo.Create(r.Context(), &p)
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

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
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

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Repo.GetAll(r.Context())
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, products)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}
	var patch models.ProductPatch
	if err := decodeBody(w, r, &patch); err != nil {
		utils.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.Repo.Update(r.Context(), id, patch); err != nil {
		utils.Error(w, err)
		return
	}
	p, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		utils.Error(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, p)
}

// DeleteProduct removes the product; orders keep their item snapshots.
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
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
