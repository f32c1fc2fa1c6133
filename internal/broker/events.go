package broker

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// MessageWriter writes a keyed event to the order topic
type MessageWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing order lifecycle events
type EventPublisher struct {
	producer MessageWriter
	now      func() time.Time
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer MessageWriter) *EventPublisher {
	return &EventPublisher{producer: producer, now: time.Now}
}

func (ep *EventPublisher) base(eventType string, order *models.Order) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: ep.now(),
		OrderID:   order.ID,
		UserID:    order.UserID,
	}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderPlaced publishes ORDER_PLACED
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, order *models.Order) error {
	event := &models.OrderPlacedEvent{
		BaseEvent:  ep.base(models.EventTypeOrderPlaced, order),
		Payment:    order.Payment,
		Price:      order.Price,
		FinalPrice: order.FinalPrice(),
		Items:      make([]models.OrderItemData, 0, len(order.Items)),
	}
	if order.Coupon != nil {
		event.Coupon = order.Coupon.Name
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.ItemPrice,
		})
	}
	return ep.producer.PublishEvent(ctx, orderKey(order.ID), event)
}

// PublishStatusChanged publishes the event matching the order's new status
func (ep *EventPublisher) PublishStatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus, reason string) error {
	event := &models.OrderStatusEvent{
		BaseEvent: ep.base(models.EventTypeForStatus(order.Status), order),
		From:      from,
		To:        order.Status,
		Reason:    reason,
	}
	return ep.producer.PublishEvent(ctx, orderKey(order.ID), event)
}
