package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"shopapi/internal/models"
)

/* =========================
   REQUEST DTOs
========================= */

type bareOrderItemRequest struct {
	ProductID string          `json:"productId" binding:"required"`
	Name      string          `json:"name"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Quantity  *models.FlexInt `json:"quantity"`
	Price     *models.FlexInt `json:"price"`
}

type createOrderRequest struct {
	Carts []bareOrderItemRequest `json:"carts"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

/* =========================
   VIEWS
========================= */

func orderJSON(order models.Order, delivery *models.Delivery) gin.H {
	var userID interface{}
	if order.UserID != nil {
		userID = order.UserID.Hex()
	}
	items := order.Items
	if items == nil {
		items = []models.OrderItem{}
	}
	return gin.H{
		"id":         order.ID.Hex(),
		"userId":     userID,
		"status":     order.Status,
		"orderItems": items,
		"delivery":   delivery,
		"createdAt":  order.CreatedAt,
		"updatedAt":  order.UpdatedAt,
	}
}

func findDelivery(ctx context.Context, db *mongo.Database, orderID primitive.ObjectID) *models.Delivery {
	var delivery models.Delivery
	err := db.Collection("deliveries").FindOne(ctx, bson.M{"orderId": orderID}).Decode(&delivery)
	if err != nil {
		return nil
	}
	return &delivery
}

/* =========================
   LIST FILTER
========================= */

// orderSearchFilter builds the listing match: search is a case-insensitive
// substring over buyer first/last name, email and the order id, OR-combined;
// status is an exact match ANDed on top.
func orderSearchFilter(search, status string) bson.M {
	filter := bson.M{}

	if search != "" {
		pattern := regexp.QuoteMeta(search)
		contains := bson.M{"$regex": pattern, "$options": "i"}
		filter["$or"] = []bson.M{
			{"delivery.firstName": contains},
			{"delivery.lastName": contains},
			{"delivery.email": contains},
			{"$expr": bson.M{"$regexMatch": bson.M{
				"input":   bson.M{"$toString": "$_id"},
				"regex":   pattern,
				"options": "i",
			}}},
		}
	}

	if status != "" {
		filter["status"] = status
	}

	return filter
}

func orderListStages(search, status string) []bson.M {
	stages := []bson.M{
		{"$lookup": bson.M{
			"from":         "deliveries",
			"localField":   "_id",
			"foreignField": "orderId",
			"as":           "delivery",
		}},
		{"$unwind": bson.M{"path": "$delivery", "preserveNullAndEmptyArrays": true}},
	}
	if match := orderSearchFilter(search, status); len(match) > 0 {
		stages = append(stages, bson.M{"$match": match})
	}
	return stages
}

/* =========================
   GET ONE ORDER
========================= */

func GetOrder(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/:orderId"
		defer handlePanic(c, route)

		orderID, err := primitive.ObjectIDFromHex(c.Param("orderId"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var order models.Order
		err = db.Collection("orders").FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, codeNotFound, "order not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		c.JSON(http.StatusOK, orderJSON(order, findDelivery(ctx, db, order.ID)))
	}
}

/* =========================
   UPDATE STATUS
========================= */

// UpdateOrderStatus overwrites the status with whatever string the caller
// sends. There is no transition table: statuses beyond Pending/Placed are
// owned by fulfillment tooling.
func UpdateOrderStatus(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/:orderId"
		defer handlePanic(c, route)

		orderID, err := primitive.ObjectIDFromHex(c.Param("orderId"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid id")
			return
		}

		var req updateOrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var order models.Order
		status := strings.TrimSpace(req.Status)
		if status == "" {
			// No status in the body: return the order unchanged.
			err = db.Collection("orders").FindOne(ctx, bson.M{"_id": orderID}).Decode(&order)
		} else {
			err = db.Collection("orders").FindOneAndUpdate(ctx,
				bson.M{"_id": orderID},
				bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
				mongoAfter(),
			).Decode(&order)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, codeNotFound, "order not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		log.Printf("[%s] order %s status set to %q", route, order.ID.Hex(), order.Status)
		c.JSON(http.StatusOK, orderJSON(order, findDelivery(ctx, db, order.ID)))
	}
}

/* =========================
   LIST ORDERS
========================= */

type orderWithDelivery struct {
	models.Order `bson:",inline"`
	Delivery     *models.Delivery `bson:"delivery"`
}

func ListOrders(db *mongo.Database, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/order"
		defer handlePanic(c, route)

		page, err := parsePageParam(c.Query("page"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, err.Error())
			return
		}
		search := strings.TrimSpace(c.Query("search"))
		status := strings.TrimSpace(c.Query("status"))

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		orders := db.Collection("orders")
		stages := orderListStages(search, status)

		countCursor, err := orders.Aggregate(ctx, append(stages, bson.M{"$count": "count"}))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		var counts []struct {
			Count int64 `bson:"count"`
		}
		if err := countCursor.All(ctx, &counts); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		var total int64
		if len(counts) > 0 {
			total = counts[0].Count
		}

		if page > totalPagesFor(total) {
			respondWithError(c, http.StatusNotFound, route, codeNotFound, "invalid page")
			return
		}

		pageStages := append(stages,
			bson.M{"$sort": bson.M{"createdAt": -1}},
			bson.M{"$skip": (page - 1) * orderPageSize},
			bson.M{"$limit": int64(orderPageSize)},
		)

		cursor, err := orders.Aggregate(ctx, pageStages)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		defer cursor.Close(ctx)

		var rows []orderWithDelivery
		if err := cursor.All(ctx, &rows); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "decode error")
			return
		}

		results := make([]gin.H, 0, len(rows))
		for _, row := range rows {
			results = append(results, orderJSON(row.Order, row.Delivery))
		}

		log.Printf("[%s] page=%d count=%d search=%q status=%q", route, page, total, search, status)
		c.JSON(http.StatusOK, buildOrderPage(baseURL, search, status, page, total, results))
	}
}

/* =========================
   CREATE BARE ORDER (order-then-deliver flow, step 1)
========================= */

// CreateOrder persists an order straight from the posted cart lines, without
// catalog resolution: the delivery step finishes it later. Unlike checkout,
// a later delivery failure does NOT remove this order; clients retry the
// delivery request against the same order id.
func CreateOrder(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/order"
		defer handlePanic(c, route)

		userID, ok := requestUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid request body")
			return
		}
		if len(req.Carts) == 0 {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "cart is empty")
			return
		}

		items := make([]models.OrderItem, 0, len(req.Carts))
		for _, line := range req.Carts {
			qty, price, err := quantityAndPrice(line.Quantity, line.Price)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, err.Error())
				return
			}
			items = append(items, models.OrderItem{
				ProductID:   line.ProductID,
				ProductName: line.Name,
				ColorName:   line.Color,
				SizeName:    line.Size,
				Quantity:    qty,
				Price:       price,
			})
		}

		now := time.Now()
		order := models.Order{
			UserID:    &userID,
			Status:    models.OrderStatusPending,
			Items:     items,
			CreatedAt: now,
			UpdatedAt: now,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		inserted, err := db.Collection("orders").InsertOne(ctx, order)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		if id, ok := inserted.InsertedID.(primitive.ObjectID); ok {
			order.ID = id
		}

		log.Printf("[%s] order %s created for user %s", route, order.ID.Hex(), userID.Hex())
		c.JSON(http.StatusCreated, orderJSON(order, nil))
	}
}

/* =========================
   DELETE ORDER (admin)
========================= */

func DeleteOrder(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/api/orders/:id"
		defer handlePanic(c, route)

		orderID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		result, err := db.Collection("orders").DeleteOne(ctx, bson.M{"_id": orderID})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, codeNotFound, "order not found")
			return
		}

		// The delivery belongs to its order; remove it with it.
		if _, err := db.Collection("deliveries").DeleteMany(ctx, bson.M{"orderId": orderID}); err != nil {
			log.Printf("[%s] [ERROR] delivery cascade delete failed for %s: %v", route, orderID.Hex(), err)
		}

		c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
	}
}
