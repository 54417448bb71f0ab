package handlers

import (
	"context"
	"encoding/json"
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
	"go.mongodb.org/mongo-driver/mongo/options"

	"shopapi/internal/cache"
	"shopapi/internal/models"
)

/* =========================
   REQUEST DTOs
========================= */

type addCartItemRequest struct {
	ProductID string          `json:"productId" binding:"required"`
	Quantity  *models.FlexInt `json:"quantity"`
	Price     *models.FlexInt `json:"price"`
	Color     string          `json:"color"`
}

type updateCartItemRequest struct {
	ProductID string          `json:"productId" binding:"required"`
	Quantity  *models.FlexInt `json:"quantity"`
}

type removeCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

type mergeCartRequest struct {
	Items []addCartItemRequest `json:"items"`
}

// cartLineView is the serialized cart line: the stored fields plus display
// data resolved from the catalog.
type cartLineView struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Image     string `json:"image,omitempty"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Color     string `json:"color,omitempty"`
}

/* =========================
   HELPERS
========================= */

// quantityAndPrice applies the add/merge defaults (quantity 1, price 0) and
// rejects negative values.
func quantityAndPrice(quantity, price *models.FlexInt) (int, int64, error) {
	qty := 1
	if quantity != nil {
		qty = quantity.Int()
	}
	var unitPrice int64
	if price != nil {
		unitPrice = price.Int64()
	}
	if qty < 0 || unitPrice < 0 {
		return 0, 0, fmt.Errorf("quantity and price must be non-negative")
	}
	return qty, unitPrice, nil
}

// upsertCartLine accumulates quantity into the (user, product) line or creates
// it, in one atomic write. The unique (userId, productId) index plus $inc
// means concurrent adds for the same pair cannot lose updates.
func upsertCartLine(ctx context.Context, db *mongo.Database, userID primitive.ObjectID, product models.Product, qty int, price int64, color string) (models.CartItem, error) {
	now := time.Now()
	filter := bson.M{"userId": userID, "productId": product.ID}
	update := bson.M{
		"$inc": bson.M{"quantity": qty},
		"$set": bson.M{"updatedAt": now},
		"$setOnInsert": bson.M{
			"userId":    userID,
			"productId": product.ID,
			"name":      product.Name,
			"price":     price,
			"color":     color,
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var line models.CartItem
	err := db.Collection("carts").FindOneAndUpdate(ctx, filter, update, opts).Decode(&line)
	return line, err
}

func cartLineToView(line models.CartItem, imageURL string) cartLineView {
	return cartLineView{
		ID:        line.ID.Hex(),
		ProductID: line.ProductID,
		Image:     imageURL,
		Name:      line.Name,
		Price:     line.Price,
		Quantity:  line.Quantity,
		Color:     line.Color,
	}
}

func invalidateCartCache(ctx context.Context, cartCache cache.CartCache, userID primitive.ObjectID) {
	if err := cartCache.Delete(ctx, userID.Hex()); err != nil {
		log.Println("[CART] [WARN] cache invalidation failed:", err)
	}
}

/* =========================
   LIST CART
========================= */

func GetCart(db *mongo.Database, cartCache cache.CartCache, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/cart"
		defer handlePanic(c, route)

		userID, ok := requestUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if cached, err := cartCache.Get(ctx, userID.Hex()); err == nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			return
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Println("[CART] [WARN] cache read failed:", err)
		}

		cursor, err := db.Collection("carts").Find(ctx, bson.M{"userId": userID})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		defer cursor.Close(ctx)

		var lines []models.CartItem
		if err := cursor.All(ctx, &lines); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "decode error")
			return
		}

		views := make([]cartLineView, 0, len(lines))
		for _, line := range lines {
			imageURL := ""
			product, err := findProduct(ctx, db, line.ProductID)
			if err == nil {
				imageURL = productImageURL(baseURL, product.ImagePath)
			}
			views = append(views, cartLineToView(line, imageURL))
		}

		body, err := json.Marshal(views)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "encode error")
			return
		}
		if err := cartCache.Set(ctx, userID.Hex(), body); err != nil {
			log.Println("[CART] [WARN] cache write failed:", err)
		}

		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
	}
}

/* =========================
   ADD ITEM
========================= */

func AddCartItem(db *mongo.Database, cartCache cache.CartCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/cart"
		defer handlePanic(c, route)

		userID, ok := requestUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		var req addCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid request body")
			return
		}

		qty, price, err := quantityAndPrice(req.Quantity, req.Price)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		product, err := findProduct(ctx, db, req.ProductID)
		if err != nil {
			var notFound productNotFoundError
			if errors.As(err, &notFound) {
				respondWithError(c, http.StatusNotFound, route, codeNotFound, "product not found")
				return
			}
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		line, err := upsertCartLine(ctx, db, userID, product, qty, price, req.Color)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		invalidateCartCache(ctx, cartCache, userID)

		c.JSON(http.StatusCreated, gin.H{
			"message": "added to cart",
			"item":    cartLineToView(line, ""),
		})
	}
}

/* =========================
   UPDATE QUANTITY
========================= */

func UpdateCartItem(db *mongo.Database, cartCache cache.CartCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/cart"
		defer handlePanic(c, route)

		userID, ok := requestUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		var req updateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid request body")
			return
		}
		if req.Quantity == nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "quantity is required")
			return
		}
		if req.Quantity.Int() < 1 {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "quantity must be at least 1")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if _, err := findProduct(ctx, db, req.ProductID); err != nil {
			var notFound productNotFoundError
			if errors.As(err, &notFound) {
				respondWithError(c, http.StatusNotFound, route, codeNotFound, "product not found")
				return
			}
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		// Overwrite, not accumulate.
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		update := bson.M{"$set": bson.M{"quantity": req.Quantity.Int(), "updatedAt": time.Now()}}

		var line models.CartItem
		err := db.Collection("carts").
			FindOneAndUpdate(ctx, bson.M{"userId": userID, "productId": req.ProductID}, update, opts).
			Decode(&line)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, codeNotFound, "item not found in cart")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		invalidateCartCache(ctx, cartCache, userID)

		c.JSON(http.StatusOK, gin.H{
			"message": "cart item updated",
			"item":    cartLineToView(line, ""),
		})
	}
}

/* =========================
   REMOVE ITEM
========================= */

func RemoveCartItem(db *mongo.Database, cartCache cache.CartCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/cart"
		defer handlePanic(c, route)

		userID, ok := requestUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		var req removeCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "productId is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if _, err := findProduct(ctx, db, req.ProductID); err != nil {
			var notFound productNotFoundError
			if errors.As(err, &notFound) {
				respondWithError(c, http.StatusNotFound, route, codeNotFound, "product not found")
				return
			}
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		result, err := db.Collection("carts").DeleteOne(ctx, bson.M{"userId": userID, "productId": req.ProductID})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, codeNotFound, "item not found in cart")
			return
		}

		invalidateCartCache(ctx, cartCache, userID)

		c.JSON(http.StatusOK, gin.H{"message": "item removed from cart"})
	}
}

/* =========================
   MERGE CART
========================= */

// MergeCart folds an anonymous cart into the caller's cart. Items that do not
// resolve are skipped, never failing the request as a whole. Quantities
// accumulate on every call, so replaying the same payload keeps summing; the
// client sends it once, right after login.
func MergeCart(db *mongo.Database, cartCache cache.CartCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/cart/merge"
		defer handlePanic(c, route)

		userID, ok := requestUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		var req mergeCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "invalid request body")
			return
		}
		if len(req.Items) == 0 {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "no items provided for merging")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		merged := make([]cartLineView, 0, len(req.Items))
		for _, item := range req.Items {
			if strings.TrimSpace(item.ProductID) == "" {
				continue
			}

			product, err := findProduct(ctx, db, item.ProductID)
			if err != nil {
				var notFound productNotFoundError
				if errors.As(err, &notFound) {
					continue
				}
				respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
				return
			}

			qty, price, err := quantityAndPrice(item.Quantity, item.Price)
			if err != nil {
				continue
			}

			line, err := upsertCartLine(ctx, db, userID, product, qty, price, item.Color)
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
				return
			}
			merged = append(merged, cartLineToView(line, ""))
		}

		invalidateCartCache(ctx, cartCache, userID)

		log.Printf("[%s] merged %d of %d items", route, len(merged), len(req.Items))
		c.JSON(http.StatusOK, merged)
	}
}
