package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"shopapi/internal/models"
	"shopapi/internal/notify"
)

type attachDeliveryRequest struct {
	Order           string          `json:"order" binding:"required"`
	PhoneNumber     string          `json:"phoneNumber"`
	FirstName       string          `json:"firstName"`
	LastName        string          `json:"lastName"`
	Email           string          `json:"email"`
	ShippingAddress string          `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	ShippingCost    *models.FlexInt `json:"shippingCost"`
	Subtotal        *models.FlexInt `json:"subtotal"`
	Discount        *models.FlexInt `json:"discount"`
	PaymentAmount   *models.FlexInt `json:"paymentAmount"`
	PaymentStatus   string          `json:"paymentStatus"`
}

// AttachDelivery finishes the order-then-deliver flow: it adds the delivery
// record to an order the caller owns, marks the order Placed and hands the
// summary to the notification collaborator. The order itself is never rolled
// back here; a failed delivery leaves it Pending for a retry.
func AttachDelivery(db *mongo.Database, notifier notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/delivery"
		defer handlePanic(c, route)

		userID, ok := requestUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		var req attachDeliveryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid request body")
			return
		}

		orderID, err := primitive.ObjectIDFromHex(req.Order)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid order id")
			return
		}

		if err := validateDeliveryInfo(req.PhoneNumber, req.FirstName, req.LastName, req.ShippingAddress); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		var order models.Order
		err = db.Collection("orders").FindOne(ctx, bson.M{"_id": orderID, "userId": userID}).Decode(&order)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, codeNotFound, "order not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		paymentMethod := req.PaymentMethod
		if paymentMethod == "" {
			paymentMethod = models.PaymentMethodCOD
		}
		paymentStatus := req.PaymentStatus
		if paymentStatus == "" {
			paymentStatus = models.PaymentStatusPending
		}

		subtotal := flexOrZero(req.Subtotal)
		shippingCost := flexOrZero(req.ShippingCost)
		paymentAmount := flexOrZero(req.PaymentAmount)
		if req.PaymentAmount == nil {
			paymentAmount = paymentAmountFor(subtotal, shippingCost)
		}

		delivery := models.Delivery{
			OrderID:         orderID,
			PhoneNumber:     req.PhoneNumber,
			FirstName:       req.FirstName,
			LastName:        req.LastName,
			Email:           req.Email,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   paymentMethod,
			ShippingCost:    shippingCost,
			Subtotal:        subtotal,
			Discount:        flexOrZero(req.Discount),
			PaymentAmount:   paymentAmount,
			PaymentStatus:   paymentStatus,
			CreatedAt:       time.Now(),
		}

		inserted, err := db.Collection("deliveries").InsertOne(ctx, delivery)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "delivery already exists for this order")
				return
			}
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		if id, ok := inserted.InsertedID.(primitive.ObjectID); ok {
			delivery.ID = id
		}

		err = db.Collection("orders").FindOneAndUpdate(ctx,
			bson.M{"_id": orderID},
			bson.M{"$set": bson.M{"status": models.OrderStatusPlaced, "updatedAt": time.Now()}},
			mongoAfter(),
		).Decode(&order)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		// Fire-and-forget: the notification collaborator's failures are this
		// service's logs, never the caller's problem.
		event := notify.NewOrderPlacedEvent(order, delivery)
		notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer notifyCancel()
		if err := notifier.OrderPlaced(notifyCtx, event); err != nil {
			log.Printf("[%s] [ERROR] order notification failed for %s: %v", route, order.ID.Hex(), err)
		}

		log.Printf("[%s] delivery attached to order %s", route, order.ID.Hex())
		c.JSON(http.StatusOK, orderJSON(order, &delivery))
	}
}
