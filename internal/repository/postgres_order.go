package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/procura/internal/models"
)

type gormOrders struct{ store *Store }

func (r *gormOrders) Create(ctx context.Context, o *models.Order) error {
	return r.store.conn(ctx).Create(o).Error
}

func (r *gormOrders) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.store.conn(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *gormOrders) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.store.conn(ctx).
		Preload("Items").
		First(&order, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *gormOrders) ListByUser(ctx context.Context, userID uuid.UUID, f OrderFilter) ([]models.Order, int64, error) {
	query := r.store.conn(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if f.Limit > 0 {
		query = query.Limit(f.Limit).Offset(f.Offset)
	}
	if err := query.Preload("Items").
		Order("placed_at desc").
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// TransitionStatus flips the status only when the order is still in the
// expected source status, serializing concurrent transitions per order.
func (r *gormOrders) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error {
	res := r.store.conn(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var order models.Order
		if err := r.store.conn(ctx).Select("id").First(&order, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

func (r *gormOrders) UpdatePayment(ctx context.Context, id uuid.UUID, upd PaymentUpdate) error {
	updates := map[string]any{
		"payment_status": upd.Status,
		"updated_at":     time.Now(),
	}
	if upd.Ref != "" {
		updates["payment_ref"] = upd.Ref
	}
	if upd.PaidAt != nil {
		updates["paid_at"] = upd.PaidAt
	}

	res := r.store.conn(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormOrders) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.store.conn(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"delivered_at": &at, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormOrders) UpdateSupplierSync(ctx context.Context, id uuid.UUID, ref string, syncErr string) error {
	now := time.Now()
	return r.store.conn(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"supplier_order_ref":  ref,
			"supplier_synced_at":  &now,
			"supplier_sync_error": syncErr,
		}).Error
}

func (r *gormOrders) AppendTrackingEvent(ctx context.Context, ev *models.TrackingEvent) error {
	return r.store.conn(ctx).Create(ev).Error
}

// TrackingEvents returns the log in insertion order. OccurredAt is a
// client-supplied display timestamp and must not drive ordering: the
// monotonicity guard reads the latest event, and a backdated timestamp
// would hide it.
func (r *gormOrders) TrackingEvents(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error) {
	var events []models.TrackingEvent
	if err := r.store.conn(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *gormOrders) LastTrackingEvent(ctx context.Context, orderID uuid.UUID) (*models.TrackingEvent, error) {
	var ev models.TrackingEvent
	if err := r.store.conn(ctx).
		Where("order_id = ?", orderID).
		Order("created_at desc").
		First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ev, nil
}
