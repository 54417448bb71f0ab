package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Coupon holds the discount terms behind a code. One of amount or percentage
// is typically zero.
type Coupon struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code       string             `bson:"code" json:"code"`
	Amount     int64              `bson:"amount" json:"amount"`
	Percentage float64            `bson:"percentage" json:"percentage"`
}

// CouponRedemption marks a code as used by a user. The redemption-recording
// collaborator writes these; this service only reads them for the single-use
// check.
type CouponRedemption struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CouponCode string             `bson:"couponCode" json:"couponCode"`
	UserID     primitive.ObjectID `bson:"userId" json:"userId"`
}
