package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/api/models"
	"storefront/api/store"
)

type CategoryHandlers struct {
	Categories store.CategoryStore
}

func NewCategoryHandlers(s store.CategoryStore) *CategoryHandlers {
	return &CategoryHandlers{Categories: s}
}

func (h *CategoryHandlers) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	categories, err := h.Categories.List(ctx)
	if err != nil {
		respondStoreError(c, err, "", "Failed to list categories")
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *CategoryHandlers) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	category, err := h.Categories.Get(ctx, c.Param("name"))
	if err != nil {
		respondStoreError(c, err, "Category not found", "Failed to get category")
		return
	}
	c.JSON(http.StatusOK, category)
}

type upsertCategoryRequest struct {
	Subcategories []string `json:"subcategories" binding:"dive,required"`
}

func (h *CategoryHandlers) Upsert(c *gin.Context) {
	var req upsertCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	category := models.Category{Name: c.Param("name"), Subcategories: req.Subcategories}
	if err := h.Categories.Upsert(ctx, category); err != nil {
		respondStoreError(c, err, "", "Failed to save category")
		return
	}
	c.JSON(http.StatusOK, category)
}
