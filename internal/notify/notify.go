// Package notify hands completed orders to the notification collaborator. The
// collaborator renders and sends the actual email; this side only publishes
// the data it needs, fire-and-forget.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shopapi/internal/models"
)

type OrderItemSummary struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
}

// OrderPlacedEvent carries everything the email template shows: buyer contact,
// shipping address, line items and the totals breakdown.
type OrderPlacedEvent struct {
	EventID         string             `json:"eventId"`
	OrderID         string             `json:"orderId"`
	FirstName       string             `json:"firstName"`
	LastName        string             `json:"lastName"`
	PhoneNumber     string             `json:"phoneNumber"`
	Email           string             `json:"email"`
	ShippingAddress string             `json:"shippingAddress"`
	Items           []OrderItemSummary `json:"items"`
	Subtotal        int64              `json:"subtotal"`
	Discount        int64              `json:"discount"`
	ShippingCost    int64              `json:"shippingCost"`
	PaymentAmount   int64              `json:"paymentAmount"`
	PlacedAt        time.Time          `json:"placedAt"`
}

func NewOrderPlacedEvent(order models.Order, delivery models.Delivery) OrderPlacedEvent {
	items := make([]OrderItemSummary, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemSummary{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}

	return OrderPlacedEvent{
		EventID:         uuid.NewString(),
		OrderID:         order.ID.Hex(),
		FirstName:       delivery.FirstName,
		LastName:        delivery.LastName,
		PhoneNumber:     delivery.PhoneNumber,
		Email:           delivery.Email,
		ShippingAddress: delivery.ShippingAddress,
		Items:           items,
		Subtotal:        delivery.Subtotal,
		Discount:        delivery.Discount,
		ShippingCost:    delivery.ShippingCost,
		PaymentAmount:   delivery.PaymentAmount,
		PlacedAt:        time.Now(),
	}
}

type Notifier interface {
	OrderPlaced(ctx context.Context, event OrderPlacedEvent) error
}

// Noop is used when no broker is configured.
type Noop struct{}

func (Noop) OrderPlaced(context.Context, OrderPlacedEvent) error { return nil }
