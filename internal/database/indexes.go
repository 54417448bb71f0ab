package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureCartIndexes creates the unique (userId, productId) index that backs
// the one-line-per-product invariant. Add and merge rely on it together with
// the upsert to stay race-free.
func EnsureCartIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lineIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "productId", Value: 1}},
		Options: options.Index().
			SetName("userId_productId_unique").
			SetUnique(true),
	}

	log.Println("EnsureCartIndexes: creating userId_productId_unique index")
	_, err := db.Collection("carts").Indexes().CreateOne(ctx, lineIndex)
	if err != nil {
		log.Println("EnsureCartIndexes: cart index error:", err)
		return err
	}
	return nil
}

// EnsureOrderIndexes creates the newest-first listing index on orders and the
// one-delivery-per-order unique index.
func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	createdAtIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("createdAt_desc"),
	}

	log.Println("EnsureOrderIndexes: creating createdAt_desc index")
	if _, err := db.Collection("orders").Indexes().CreateOne(ctx, createdAtIndex); err != nil {
		log.Println("EnsureOrderIndexes: orders index error:", err)
		return err
	}

	orderIDIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "orderId", Value: 1}},
		Options: options.Index().
			SetName("orderId_unique").
			SetUnique(true),
	}

	log.Println("EnsureOrderIndexes: creating orderId_unique index on deliveries")
	if _, err := db.Collection("deliveries").Indexes().CreateOne(ctx, orderIDIndex); err != nil {
		log.Println("EnsureOrderIndexes: deliveries index error:", err)
		return err
	}
	return nil
}

// EnsureCouponIndexes creates the unique code index on coupons and the
// (couponCode, userId) lookup index on redemption records.
func EnsureCouponIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	codeIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "code", Value: 1}},
		Options: options.Index().
			SetName("code_unique").
			SetUnique(true),
	}

	log.Println("EnsureCouponIndexes: creating code_unique index")
	if _, err := db.Collection("coupons").Indexes().CreateOne(ctx, codeIndex); err != nil {
		log.Println("EnsureCouponIndexes: coupon index error:", err)
		return err
	}

	redemptionIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "couponCode", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetName("couponCode_userId"),
	}

	log.Println("EnsureCouponIndexes: creating couponCode_userId index")
	if _, err := db.Collection("coupon_redemptions").Indexes().CreateOne(ctx, redemptionIndex); err != nil {
		log.Println("EnsureCouponIndexes: redemption index error:", err)
		return err
	}
	return nil
}
