package models

import "time"

// Color is a per-product color option. Checkout matches colors by name within
// the owning product only.
type Color struct {
	Name string `bson:"name" json:"name"`
	Hex  string `bson:"hex,omitempty" json:"hex,omitempty"`
}

// Product is the catalog document the core reads. The catalog service owns it;
// _id is a stable name slug, price is in minor currency units.
type Product struct {
	ID        string    `bson:"_id" json:"productId"`
	Name      string    `bson:"name" json:"name"`
	Price     int64     `bson:"price" json:"price"`
	ImagePath string    `bson:"imagePath,omitempty" json:"imagePath,omitempty"`
	Colors    []Color   `bson:"colors,omitempty" json:"colors,omitempty"`
	IsDeleted bool      `bson:"isDeleted" json:"isDeleted,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Size lives in its own collection. Checkout looks sizes up by name only,
// without a product filter, so two products sharing a size name resolve to
// whichever document sorts first. Kept as-is: existing orders were created
// under this rule.
type Size struct {
	ProductID       string `bson:"productId" json:"productId"`
	Name            string `bson:"name" json:"name"`
	PriceAdjustment int64  `bson:"priceAdjustment" json:"priceAdjustment"`
}
