package notify

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"shopapi/internal/models"
)

func TestNewOrderPlacedEventCopiesTotalsAndItems(t *testing.T) {
	orderID := primitive.NewObjectID()
	order := models.Order{
		ID:     orderID,
		Status: models.OrderStatusPlaced,
		Items: []models.OrderItem{
			{ProductID: "p1", ProductName: "Widget", Quantity: 2, Price: 100},
			{ProductID: "p2", ProductName: "Gadget", Quantity: 1, Price: 50},
		},
	}
	delivery := models.Delivery{
		OrderID:         orderID,
		FirstName:       "Ada",
		LastName:        "Lovelace",
		PhoneNumber:     "555-0101",
		Email:           "ada@example.com",
		ShippingAddress: "1 Analytical Way",
		Subtotal:        250,
		ShippingCost:    20,
		Discount:        0,
		PaymentAmount:   270,
	}

	event := NewOrderPlacedEvent(order, delivery)

	if event.OrderID != orderID.Hex() {
		t.Fatalf("expected order id %s, got %s", orderID.Hex(), event.OrderID)
	}
	if event.EventID == "" {
		t.Fatal("expected a generated event id")
	}
	if len(event.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(event.Items))
	}
	if event.Items[0].Price != 100 || event.Items[1].Price != 50 {
		t.Fatalf("item prices not copied: %+v", event.Items)
	}
	if event.PaymentAmount != 270 || event.Subtotal != 250 || event.ShippingCost != 20 {
		t.Fatalf("totals not copied: %+v", event)
	}
}

func TestNewOrderPlacedEventIDsAreUnique(t *testing.T) {
	order := models.Order{ID: primitive.NewObjectID()}
	a := NewOrderPlacedEvent(order, models.Delivery{})
	b := NewOrderPlacedEvent(order, models.Delivery{})
	if a.EventID == b.EventID {
		t.Fatal("expected distinct event ids")
	}
}
