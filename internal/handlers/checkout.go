package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"shopapi/internal/cache"
	"shopapi/internal/middleware"
	"shopapi/internal/models"
)

/* =========================
   REQUEST DTOs
========================= */

type checkoutItemRequest struct {
	ProductID string          `json:"productId" binding:"required"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Quantity  *models.FlexInt `json:"quantity"`
	Price     *models.FlexInt `json:"price"`
}

type checkoutRequest struct {
	CartItems       []checkoutItemRequest `json:"cartItems"`
	PhoneNumber     string                `json:"phoneNumber"`
	FirstName       string                `json:"firstName"`
	LastName        string                `json:"lastName"`
	Email           string                `json:"email"`
	ShippingAddress string                `json:"shippingAddress"`
	Subtotal        *models.FlexInt       `json:"subtotal"`
	ShippingCost    *models.FlexInt       `json:"shippingCost"`
}

/* =========================
   HELPERS
========================= */

func validateDeliveryInfo(phone, firstName, lastName, address string) error {
	if strings.TrimSpace(phone) == "" {
		return fmt.Errorf("phoneNumber is required")
	}
	if strings.TrimSpace(firstName) == "" {
		return fmt.Errorf("firstName is required")
	}
	if strings.TrimSpace(lastName) == "" {
		return fmt.Errorf("lastName is required")
	}
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("shippingAddress is required")
	}
	return nil
}

// paymentAmountFor is the checkout total. The discount field is stored on the
// delivery but is not part of this sum; existing clients display totals
// computed this way, so the delivery keeps recording discount separately.
func paymentAmountFor(subtotal, shippingCost int64) int64 {
	return subtotal + shippingCost
}

func flexOrZero(v *models.FlexInt) int64 {
	if v == nil {
		return 0
	}
	return v.Int64()
}

// rollbackOrder is the compensating delete for the all-or-nothing checkout:
// any failure after the order insert removes it again, so no order survives
// without its items and delivery.
func rollbackOrder(ctx context.Context, db *mongo.Database, orderID primitive.ObjectID, route string) {
	if _, err := db.Collection("orders").DeleteOne(ctx, bson.M{"_id": orderID}); err != nil {
		log.Printf("[%s] [ERROR] rollback of order %s failed: %v", route, orderID.Hex(), err)
	}
}

/* =========================
   CHECKOUT (guest or authenticated)
========================= */

// Checkout creates the order, its item snapshots and the delivery record from
// a single payload, then clears the authenticated caller's cart. Item
// quantities default to 1 and prices to 0, taken verbatim from the payload.
func Checkout(db *mongo.Database, cartCache cache.CartCache, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/checkout"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, codeInternal, "database unavailable")
			return
		}

		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid request body")
			return
		}
		if len(req.CartItems) == 0 {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "cart is empty")
			return
		}

		// Guest checkout is allowed: no header means no owner. A header that
		// fails validation is still rejected.
		userID, err := middleware.UserIDFromHeader(c.GetHeader("Authorization"), jwtSecret)
		if err != nil {
			log.Println("[CHECKOUT] [ERROR] token validation failed:", err)
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		now := time.Now()
		order := models.Order{
			UserID:    userID,
			Status:    models.OrderStatusPlaced,
			CreatedAt: now,
			UpdatedAt: now,
		}

		inserted, err := db.Collection("orders").InsertOne(ctx, order)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		orderID, _ := inserted.InsertedID.(primitive.ObjectID)
		order.ID = orderID

		items := make([]models.OrderItem, 0, len(req.CartItems))
		for _, item := range req.CartItems {
			product, err := findProduct(ctx, db, item.ProductID)
			if err != nil {
				rollbackOrder(ctx, db, orderID, route)
				var notFound productNotFoundError
				if errors.As(err, &notFound) {
					respondWithError(c, http.StatusNotFound, route, codeNotFound, "product not found: "+item.ProductID)
					return
				}
				respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
				return
			}

			sizeName, err := findSizeName(ctx, db, item.Size)
			if err != nil {
				rollbackOrder(ctx, db, orderID, route)
				respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
				return
			}

			qty, price, err := quantityAndPrice(item.Quantity, item.Price)
			if err != nil {
				rollbackOrder(ctx, db, orderID, route)
				respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, err.Error())
				return
			}

			items = append(items, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				ColorName:   findColorName(product, item.Color),
				SizeName:    sizeName,
				Quantity:    qty,
				Price:       price,
			})
		}

		if _, err := db.Collection("orders").UpdateOne(ctx,
			bson.M{"_id": orderID},
			bson.M{"$set": bson.M{"items": items, "updatedAt": time.Now()}},
		); err != nil {
			rollbackOrder(ctx, db, orderID, route)
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		order.Items = items

		if err := validateDeliveryInfo(req.PhoneNumber, req.FirstName, req.LastName, req.ShippingAddress); err != nil {
			rollbackOrder(ctx, db, orderID, route)
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, err.Error())
			return
		}

		subtotal := flexOrZero(req.Subtotal)
		shippingCost := flexOrZero(req.ShippingCost)
		delivery := models.Delivery{
			OrderID:         orderID,
			PhoneNumber:     req.PhoneNumber,
			FirstName:       req.FirstName,
			LastName:        req.LastName,
			Email:           req.Email,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   models.PaymentMethodCOD,
			ShippingCost:    shippingCost,
			Subtotal:        subtotal,
			Discount:        0,
			PaymentAmount:   paymentAmountFor(subtotal, shippingCost),
			PaymentStatus:   models.PaymentStatusPending,
			CreatedAt:       time.Now(),
		}

		deliveryResult, err := db.Collection("deliveries").InsertOne(ctx, delivery)
		if err != nil {
			rollbackOrder(ctx, db, orderID, route)
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		if id, ok := deliveryResult.InsertedID.(primitive.ObjectID); ok {
			delivery.ID = id
		}

		// Cart-to-order handoff: the durable cart is gone once the order is in.
		if userID != nil {
			if _, err := db.Collection("carts").DeleteMany(ctx, bson.M{"userId": *userID}); err != nil {
				log.Printf("[%s] [ERROR] cart clear failed for user %s: %v", route, userID.Hex(), err)
			}
			invalidateCartCache(ctx, cartCache, *userID)
			log.Printf("[%s] order %s created for user %s", route, orderID.Hex(), userID.Hex())
		} else {
			log.Printf("[%s] guest order %s created", route, orderID.Hex())
		}

		c.JSON(http.StatusCreated, orderJSON(order, &delivery))
	}
}
