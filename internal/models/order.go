package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderItem is a snapshot taken at order creation: product identity, color and
// size names, quantity and price are copied from the request and never
// recomputed, so later catalog changes do not touch placed orders.
type OrderItem struct {
	ProductID   string `bson:"productId" json:"productId"`
	ProductName string `bson:"productName" json:"productName"`
	ColorName   string `bson:"colorName,omitempty" json:"colorName,omitempty"`
	SizeName    string `bson:"sizeName,omitempty" json:"sizeName,omitempty"`
	Quantity    int    `bson:"quantity" json:"quantity"`
	Price       int64  `bson:"price" json:"price"`
}

// Order is the persisted order document. UserID is nil for guest checkouts.
// Status is an open string: "Pending" and "Placed" are set by this service,
// anything else comes from the admin status update and is stored verbatim.
type Order struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    *primitive.ObjectID `bson:"userId" json:"userId"`
	Status    string              `bson:"status" json:"status"`
	Items     []OrderItem         `bson:"items" json:"orderItems"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Known status values written by this service.
const (
	OrderStatusPending = "Pending"
	OrderStatusPlaced  = "Placed"
)

// Delivery is the buyer/shipping record, one per order. PaymentAmount is
// subtotal + shippingCost; discount is recorded but not part of the total,
// matching the totals existing clients already display.
type Delivery struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID         primitive.ObjectID `bson:"orderId" json:"order"`
	PhoneNumber     string             `bson:"phoneNumber" json:"phoneNumber"`
	FirstName       string             `bson:"firstName" json:"firstName"`
	LastName        string             `bson:"lastName" json:"lastName"`
	Email           string             `bson:"email" json:"email"`
	ShippingAddress string             `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   string             `bson:"paymentMethod" json:"paymentMethod"`
	ShippingCost    int64              `bson:"shippingCost" json:"shippingCost"`
	Subtotal        int64              `bson:"subtotal" json:"subtotal"`
	Discount        int64              `bson:"discount" json:"discount"`
	PaymentAmount   int64              `bson:"paymentAmount" json:"paymentAmount"`
	PaymentStatus   string             `bson:"paymentStatus" json:"paymentStatus"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
}

const (
	PaymentMethodCOD     = "COD"
	PaymentStatusPending = "Pending"
)
