package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"shopapi/internal/models"
)

// RedeemCoupon validates a code for the caller: unknown codes are 404, codes
// the caller already used are 409. A successful response only returns the
// discount terms; recording the redemption is the redemption collaborator's
// job, not this handler's.
func RedeemCoupon(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/coupon"
		defer handlePanic(c, route)

		userID, ok := requestUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, codeInvalidInput, "unauthorized")
			return
		}

		code := strings.TrimSpace(c.Query("code"))
		if code == "" {
			respondWithError(c, http.StatusBadRequest, route, codeInvalidInput, "code is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var coupon models.Coupon
		err := db.Collection("coupons").FindOne(ctx, bson.M{"code": code}).Decode(&coupon)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, codeNotFound, "coupon is not valid")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}

		used, err := db.Collection("coupon_redemptions").CountDocuments(ctx, bson.M{
			"couponCode": code,
			"userId":     userID,
		})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, codeInternal, "db error")
			return
		}
		if used > 0 {
			respondWithError(c, http.StatusConflict, route, codeAlreadyUsed, "coupon has already been used")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "Success",
			"amount":     coupon.Amount,
			"percentage": coupon.Percentage,
		})
	}
}
