package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/procura/internal/models"
	"github.com/example/procura/internal/repository"
)

// TrackingService appends fulfillment milestones to orders and derives
// their shipping phase. The event log is append-only and statuses advance
// monotonically: any forward jump is allowed, regressions and repeated
// terminal events are rejected.
type TrackingService struct {
	orders repository.OrderRepository
	tx     repository.TxManager
}

// NewTrackingService constructs TrackingService.
func NewTrackingService(orders repository.OrderRepository, tx repository.TxManager) *TrackingService {
	return &TrackingService{orders: orders, tx: tx}
}

// AppendEventInput describes one tracking milestone.
type AppendEventInput struct {
	OrderID    uuid.UUID
	Status     models.TrackingStatus
	Location   string
	Note       string
	Latitude   *float64
	Longitude  *float64
	OccurredAt time.Time
}

// AppendEvent appends a milestone to an order's tracking log. Reaching
// delivered stamps the order's delivery timestamp and flips the order
// status to delivered.
func (s *TrackingService) AppendEvent(ctx context.Context, in AppendEventInput) (*models.TrackingEvent, error) {
	if in.Status.Rank() < 0 {
		return nil, fmt.Errorf("%w: unknown tracking status %q", ErrValidationFailed, in.Status)
	}

	var event *models.TrackingEvent
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetByID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusCancelled {
			return fmt.Errorf("%w: order is cancelled", ErrInvalidStateTransition)
		}

		last, err := s.orders.LastTrackingEvent(ctx, in.OrderID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if last != nil {
			if last.Status.Terminal() {
				return fmt.Errorf("%w: tracking already reached %s", ErrInvalidStateTransition, last.Status)
			}
			if in.Status.Rank() < last.Status.Rank() {
				return fmt.Errorf("%w: %s after %s is out of order", ErrInvalidStateTransition, in.Status, last.Status)
			}
		}

		occurredAt := in.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now()
		}
		event = &models.TrackingEvent{
			OrderID:    in.OrderID,
			Status:     in.Status,
			Location:   in.Location,
			Note:       in.Note,
			Latitude:   in.Latitude,
			Longitude:  in.Longitude,
			OccurredAt: occurredAt,
		}
		if err := s.orders.AppendTrackingEvent(ctx, event); err != nil {
			return err
		}

		if in.Status == models.TrackingDelivered {
			if err := s.orders.MarkDelivered(ctx, order.ID, occurredAt); err != nil {
				return err
			}
			if order.Status != models.OrderStatusDelivered {
				if err := s.orders.TransitionStatus(ctx, order.ID, order.Status, models.OrderStatusDelivered); err != nil {
					if errors.Is(err, repository.ErrStaleStatus) {
						return fmt.Errorf("%w: order changed concurrently", ErrInvalidStateTransition)
					}
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Events returns an order's tracking log in the order it was recorded.
func (s *TrackingService) Events(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.orders.TrackingEvents(ctx, orderID)
}

// Phase derives the order's current shipping phase from the latest
// tracking event. Orders without events are still at order_placed.
func (s *TrackingService) Phase(ctx context.Context, orderID uuid.UUID) (models.TrackingStatus, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return "", err
	}
	last, err := s.orders.LastTrackingEvent(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.TrackingOrderPlaced, nil
		}
		return "", err
	}
	return last.Status, nil
}
