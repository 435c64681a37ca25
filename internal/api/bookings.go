package api

import (
	"net/http"

	"booking-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	booking, err := h.bookingService.CreateBooking(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) listBookings(c *gin.Context) {
	var req service.ListBookingsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	page, err := h.bookingService.ListBookings(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) getBooking(c *gin.Context) {
	booking, err := h.bookingService.GetBooking(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) updateBookingStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	booking, err := h.bookingService.UpdateStatus(c.Request.Context(), callerFrom(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) cancelBooking(c *gin.Context) {
	var req service.CancelBookingRequest
	// the reason is optional, so an empty body is accepted
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondBindError(c, err)
			return
		}
	}

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), callerFrom(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking":      booking,
		"refundAmount": booking.Cancellation.RefundAmount,
	})
}

func (h *Handler) confirmPayment(c *gin.Context) {
	var req service.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	booking, err := h.bookingService.ConfirmPayment(c.Request.Context(), callerFrom(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) addReview(c *gin.Context) {
	var req service.AddReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	booking, err := h.bookingService.AddReview(c.Request.Context(), callerFrom(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) addMessage(c *gin.Context) {
	var req service.AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	booking, err := h.bookingService.AddMessage(c.Request.Context(), callerFrom(c), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) markMessagesRead(c *gin.Context) {
	booking, err := h.bookingService.MarkMessagesRead(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}
