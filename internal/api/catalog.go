package api

import (
	"net/http"
	"strconv"

	"booking-service/internal/apperr"
	"booking-service/internal/service"

	"github.com/gin-gonic/gin"
)

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.respondError(c, apperr.NotFound("product not found"))
		return
	}

	product, err := h.catalogService.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) getDestination(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.respondError(c, apperr.NotFound("destination not found"))
		return
	}

	destination, err := h.catalogService.GetDestination(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, destination)
}

func (h *Handler) rateProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.respondError(c, apperr.NotFound("product not found"))
		return
	}

	var req service.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	product, err := h.catalogService.RateProduct(c.Request.Context(), id, req.Rating)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) rateDestination(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		h.respondError(c, apperr.NotFound("destination not found"))
		return
	}

	var req service.RatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	destination, err := h.catalogService.RateDestination(c.Request.Context(), id, req.Rating)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, destination)
}
