package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

const maxMessageLength = 2000

// UpdateStatusRequest moves a booking to a new status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note" binding:"max=500"`
}

// ConfirmPaymentRequest carries the provider's payment reference
type ConfirmPaymentRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	Method        string `json:"method"`
}

// CancelBookingRequest carries an optional cancellation reason
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// AddReviewRequest attaches a rating to a completed booking
type AddReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

// AddMessageRequest posts to the booking's message thread
type AddMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// UpdateStatus applies a seller/admin status change and appends its timeline entry
func (s *BookingService) UpdateStatus(ctx context.Context, caller models.Identity, id string, req *UpdateStatusRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.UpdateStatus", id)
	defer span.End()

	target, err := models.ParseBookingStatus(req.Status)
	if err != nil {
		return nil, apperr.Validation("invalid status", apperr.Field("status", err.Error()))
	}

	return s.withLock(ctx, id, func() (*models.Booking, error) {
		booking, err := s.loadVisible(ctx, caller, id)
		if err != nil {
			return nil, err
		}

		if !caller.IsAdmin() && !booking.IsSeller(caller.Party) {
			util.BookingRejectionsTotal.WithLabelValues("update_status", "forbidden").Inc()
			return nil, apperr.Forbidden("only the seller or an admin can update booking status")
		}

		if target == models.StatusCancelled {
			return s.cancel(ctx, caller, booking, req.Note)
		}

		if err := s.checkTransition(booking, target); err != nil {
			util.BookingRejectionsTotal.WithLabelValues("update_status", "illegal_transition").Inc()
			return nil, err
		}

		note := strings.TrimSpace(req.Note)
		if note == "" {
			note = fmt.Sprintf("Status changed to %s", target)
		}

		updated, err := s.bookings.ApplyTransition(ctx, booking.ID, models.Transition{
			From: booking.Status,
			Entry: models.TimelineEntry{
				Status:    target,
				Timestamp: s.now(),
				Note:      note,
				UpdatedBy: caller.Party,
			},
		})
		if err != nil {
			util.RecordError(span, err)
			return nil, storeError("update booking status", err)
		}

		util.BookingTransitionsTotal.WithLabelValues(string(booking.Status), string(target)).Inc()
		s.logger.Info("Booking status updated",
			zap.String("booking_id", booking.ID),
			zap.String("from", string(booking.Status)),
			zap.String("to", string(target)),
			zap.Stringer("updated_by", caller.Party))

		event := &models.BookingStatusChangedEvent{
			BaseEvent: s.baseEvent(models.EventTypeBookingStatusChanged, updated),
			From:      booking.Status,
			To:        target,
			UpdatedBy: caller.Party,
		}
		if err := s.events.PublishStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish BookingStatusChanged event", zap.Error(err))
		}

		return updated, nil
	})
}

// checkTransition validates the booking's next status against the transition table, or only
// rejects no-op changes when strict transitions are disabled. A reviewed booking stays
// completed in either mode.
func (s *BookingService) checkTransition(booking *models.Booking, to models.BookingStatus) error {
	from := booking.Status
	if from == to {
		return apperr.Validation(fmt.Sprintf("booking is already %s", to),
			apperr.Field("status", "must differ from the current status"))
	}
	if booking.Review != nil {
		return apperr.Validation("a reviewed booking cannot change status",
			apperr.Field("status", "booking has been reviewed"))
	}
	if s.opts.StrictTransitions && !from.CanTransitionTo(to) {
		return apperr.Validation(fmt.Sprintf("cannot change booking status from %s to %s", from, to),
			apperr.Field("status", "transition not allowed"))
	}
	return nil
}

// ConfirmPayment records the provider's payment and confirms the booking. Repeating the
// call with the same transaction id returns the booking unchanged.
func (s *BookingService) ConfirmPayment(ctx context.Context, caller models.Identity, id string, req *ConfirmPaymentRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.ConfirmPayment", id)
	defer span.End()

	txID := strings.TrimSpace(req.TransactionID)
	if txID == "" {
		return nil, apperr.Validation("transaction id is required", apperr.Field("transactionId", "is required"))
	}

	return s.withLock(ctx, id, func() (*models.Booking, error) {
		booking, err := s.loadVisible(ctx, caller, id)
		if err != nil {
			return nil, err
		}

		if !booking.IsTourist(caller.Party) {
			util.BookingRejectionsTotal.WithLabelValues("confirm_payment", "forbidden").Inc()
			return nil, apperr.Forbidden("only the booking's tourist can confirm payment")
		}

		done, err := s.alreadyPaid(booking, txID)
		if err != nil {
			return nil, err
		}
		if done {
			return booking, nil
		}

		if booking.Status != models.StatusPending {
			util.BookingRejectionsTotal.WithLabelValues("confirm_payment", "not_pending").Inc()
			return nil, apperr.Validation(fmt.Sprintf("cannot confirm payment for a %s booking", booking.Status),
				apperr.Field("status", "booking must be pending"))
		}

		if err := s.claimTransaction(ctx, txID, booking.ID); err != nil {
			return nil, err
		}

		method := strings.TrimSpace(req.Method)
		if method == "" {
			method = booking.Payment.Method
		}

		now := s.now()
		payment := booking.Payment
		payment.Status = models.PaymentPaid
		payment.Method = method
		payment.TransactionID = txID
		payment.PaymentDate = &now

		updated, err := s.bookings.ApplyTransition(ctx, booking.ID, models.Transition{
			From: models.StatusPending,
			Entry: models.TimelineEntry{
				Status:    models.StatusConfirmed,
				Timestamp: now,
				Note:      "Payment confirmed",
				UpdatedBy: caller.Party,
			},
			Payment: &payment,
		})
		if errors.Is(err, store.ErrConditionFailed) {
			// A concurrent confirmation with the same reference is still a success.
			current, getErr := s.bookings.GetBooking(ctx, booking.ID)
			if getErr == nil {
				if done, dupErr := s.alreadyPaid(current, txID); dupErr != nil {
					return nil, dupErr
				} else if done {
					return current, nil
				}
			}
		}
		if err != nil {
			util.RecordError(span, err)
			return nil, storeError("confirm payment", err)
		}

		util.PaymentsConfirmedTotal.Inc()
		util.BookingTransitionsTotal.WithLabelValues(string(models.StatusPending), string(models.StatusConfirmed)).Inc()
		s.logger.Info("Payment confirmed",
			zap.String("booking_id", booking.ID),
			zap.String("tx_id", txID))

		event := &models.BookingPaymentConfirmedEvent{
			BaseEvent:     s.baseEvent(models.EventTypeBookingPaymentConfirmed, updated),
			TransactionID: txID,
			Method:        method,
			Amount:        updated.Pricing.TotalAmount,
		}
		if err := s.events.PublishPaymentConfirmed(ctx, event); err != nil {
			s.logger.Error("Failed to publish BookingPaymentConfirmed event", zap.Error(err))
		}

		return updated, nil
	})
}

// claimTransaction binds a payment reference to one booking. Redis being down only
// loses cross-booking reuse detection; the conditional update still guards the booking.
func (s *BookingService) claimTransaction(ctx context.Context, txID, bookingID string) error {
	if s.locker == nil {
		return nil
	}
	owner, claimed, err := s.locker.ClaimIdempotencyKey(ctx, "payment:"+txID, bookingID, s.opts.IdempotencyTTL)
	if err != nil {
		s.logger.Warn("Payment idempotency key unavailable", zap.String("tx_id", txID), zap.Error(err))
		return nil
	}
	if !claimed && owner != bookingID {
		util.BookingRejectionsTotal.WithLabelValues("confirm_payment", "transaction_reused").Inc()
		return apperr.Conflict("transaction id is already used by another booking")
	}
	return nil
}

// alreadyPaid reports whether the booking's payment is settled. Settled with txID is a
// no-op; settled with any other reference is a conflict.
func (s *BookingService) alreadyPaid(b *models.Booking, txID string) (bool, error) {
	if b.Payment.Status != models.PaymentPaid {
		return false, nil
	}
	if b.Payment.TransactionID == txID {
		util.PaymentDuplicatesTotal.Inc()
		s.logger.Info("Duplicate payment confirmation ignored",
			zap.String("booking_id", b.ID),
			zap.String("tx_id", txID))
		return true, nil
	}
	util.BookingRejectionsTotal.WithLabelValues("confirm_payment", "already_paid").Inc()
	return true, apperr.Conflict("booking is already paid with a different transaction")
}

// CancelBooking cancels on behalf of the tourist, the seller or an admin
func (s *BookingService) CancelBooking(ctx context.Context, caller models.Identity, id string, req *CancelBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CancelBooking", id)
	defer span.End()

	return s.withLock(ctx, id, func() (*models.Booking, error) {
		booking, err := s.loadVisible(ctx, caller, id)
		if err != nil {
			return nil, err
		}
		return s.cancel(ctx, caller, booking, req.Reason)
	})
}

// cancel computes the refund from the product's policy and records the cancellation
// together with its timeline entry. Refund execution happens later, off the request path.
func (s *BookingService) cancel(ctx context.Context, caller models.Identity, booking *models.Booking, reason string) (*models.Booking, error) {
	if !booking.Status.IsCancellable() {
		util.BookingRejectionsTotal.WithLabelValues("cancel", "terminal_status").Inc()
		return nil, apperr.Validation(fmt.Sprintf("booking cannot be cancelled when %s", booking.Status),
			apperr.Field("status", "booking is already in a terminal status"))
	}

	policy := s.cancellationPolicy(ctx, booking.ProductID)
	now := s.now()
	refund := ComputeRefund(policy, booking.Pricing.TotalAmount, booking.Details.StartDate, now)

	reason = strings.TrimSpace(reason)
	note := "Booking cancelled"
	if reason != "" {
		note = "Booking cancelled: " + reason
	}

	updated, err := s.bookings.ApplyTransition(ctx, booking.ID, models.Transition{
		From: booking.Status,
		Entry: models.TimelineEntry{
			Status:    models.StatusCancelled,
			Timestamp: now,
			Note:      note,
			UpdatedBy: caller.Party,
		},
		Cancellation: &models.Cancellation{
			RequestedBy:  caller.Party,
			Reason:       reason,
			RequestedAt:  now,
			ApprovedAt:   &now,
			RefundAmount: refund,
			RefundStatus: models.RefundPending,
		},
	})
	if err != nil {
		return nil, storeError("cancel booking", err)
	}

	util.BookingsCancelledTotal.Inc()
	util.BookingTransitionsTotal.WithLabelValues(string(booking.Status), string(models.StatusCancelled)).Inc()
	if total := booking.Pricing.TotalAmount; total > 0 {
		util.RefundAmountComputed.Observe(float64(refund) / float64(total))
	}
	s.logger.Info("Booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.Stringer("requested_by", caller.Party),
		zap.Int64("refund_amount", refund))

	event := &models.BookingCancelledEvent{
		BaseEvent:     s.baseEvent(models.EventTypeBookingCancelled, updated),
		RequestedBy:   caller.Party,
		Reason:        reason,
		RefundAmount:  refund,
		TotalAmount:   updated.Pricing.TotalAmount,
		PaymentStatus: updated.Payment.Status,
		TransactionID: updated.Payment.TransactionID,
	}
	if err := s.events.PublishBookingCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish BookingCancelled event", zap.Error(err))
	}

	return updated, nil
}

// cancellationPolicy loads the product's policy, falling back to the default full-refund
// policy when the product is gone
func (s *BookingService) cancellationPolicy(ctx context.Context, productID int64) models.CancellationPolicy {
	product, err := s.catalog.GetProductByID(ctx, productID)
	if err != nil {
		s.logger.Warn("Product unavailable for cancellation policy, using default",
			zap.Int64("product_id", productID), zap.Error(err))
		return models.CancellationPolicy{
			Allowed:          true,
			DeadlineHours:    models.DefaultDeadlineHours,
			RefundPercentage: models.DefaultRefundPercentage,
		}
	}
	return product.Policy()
}

// AddReview attaches the tourist's review to a completed booking and feeds the rating
// into the product's running average
func (s *BookingService) AddReview(ctx context.Context, caller models.Identity, id string, req *AddReviewRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.AddReview", id)
	defer span.End()

	if !models.ValidRating(req.Rating) {
		return nil, apperr.Validation("invalid rating", apperr.Field("rating", "must be between 1 and 5"))
	}

	booking, err := s.loadVisible(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if !booking.IsTourist(caller.Party) {
		return nil, apperr.Forbidden("only the booking's tourist can review it")
	}
	if booking.Status != models.StatusCompleted {
		util.BookingRejectionsTotal.WithLabelValues("review", "not_completed").Inc()
		return nil, apperr.Validation("only completed bookings can be reviewed",
			apperr.Field("status", "booking must be completed"))
	}
	if booking.Review != nil {
		util.BookingRejectionsTotal.WithLabelValues("review", "already_reviewed").Inc()
		return nil, apperr.Validation("booking has already been reviewed",
			apperr.Field("rating", "a review already exists"))
	}

	updated, err := s.bookings.AttachReview(ctx, booking.ID, models.Review{
		Rating:      req.Rating,
		Comment:     strings.TrimSpace(req.Comment),
		SubmittedAt: s.now(),
	})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, apperr.Validation("booking has already been reviewed",
			apperr.Field("rating", "a review already exists"))
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, storeError("attach review", err)
	}

	if _, err := s.catalog.AddProductRating(ctx, booking.ProductID, req.Rating); err != nil {
		s.logger.Error("Failed to update product rating",
			zap.Int64("product_id", booking.ProductID), zap.Error(err))
	}

	util.ReviewsSubmittedTotal.Inc()

	event := &models.BookingReviewedEvent{
		BaseEvent: s.baseEvent(models.EventTypeBookingReviewed, updated),
		ProductID: updated.ProductID,
		Rating:    req.Rating,
	}
	if err := s.events.PublishBookingReviewed(ctx, event); err != nil {
		s.logger.Error("Failed to publish BookingReviewed event", zap.Error(err))
	}

	return updated, nil
}

// AddMessage appends to the message thread between tourist and seller
func (s *BookingService) AddMessage(ctx context.Context, caller models.Identity, id string, req *AddMessageRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.AddMessage", id)
	defer span.End()

	text := strings.TrimSpace(req.Message)
	if text == "" || len(text) > maxMessageLength {
		return nil, apperr.Validation("invalid message",
			apperr.Field("message", fmt.Sprintf("must be between 1 and %d characters", maxMessageLength)))
	}

	booking, err := s.loadVisible(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.bookings.AppendMessage(ctx, booking.ID, models.Message{
		Sender:    caller.Party,
		Message:   text,
		Timestamp: s.now(),
	})
	if err != nil {
		return nil, storeError("append message", err)
	}

	s.logger.Debug("Booking message posted",
		zap.String("booking_id", booking.ID),
		zap.Stringer("sender", caller.Party),
		zap.Stringer("recipient", booking.Counterpart(caller.Party)))
	return updated, nil
}

// MarkMessagesRead marks the counterpart's messages as read for a booking party
func (s *BookingService) MarkMessagesRead(ctx context.Context, caller models.Identity, id string) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.MarkMessagesRead", id)
	defer span.End()

	booking, err := s.loadVisible(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !booking.IsTourist(caller.Party) && !booking.IsSeller(caller.Party) {
		return nil, apperr.Forbidden("only booking parties can mark messages read")
	}

	updated, err := s.bookings.MarkMessagesRead(ctx, booking.ID, caller.Party)
	if err != nil {
		return nil, storeError("mark messages read", err)
	}
	return updated, nil
}
