package handlers

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"shopapi/internal/models"
)

// Catalog lookups. The catalog service owns these collections; the core only
// resolves identity and display data from them.

type productNotFoundError struct {
	ProductID string
}

func (e productNotFoundError) Error() string {
	return "product not found: " + e.ProductID
}

func findProduct(ctx context.Context, db *mongo.Database, productID string) (models.Product, error) {
	var product models.Product
	err := db.Collection("products").FindOne(ctx, bson.M{
		"_id":       productID,
		"isDeleted": bson.M{"$ne": true},
	}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, productNotFoundError{ProductID: productID}
	}
	if err != nil {
		return models.Product{}, err
	}
	return product, nil
}

// findColorName matches a color by name within the product's own options.
func findColorName(product models.Product, name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	for _, color := range product.Colors {
		if color.Name == name {
			return color.Name
		}
	}
	return ""
}

// findSizeName matches a size by name across the whole sizes collection, not
// scoped to the product. Scoping it would change which size document existing
// checkout payloads resolve to, so it stays global.
func findSizeName(ctx context.Context, db *mongo.Database, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}

	var size models.Size
	err := db.Collection("sizes").FindOne(ctx, bson.M{"name": name}).Decode(&size)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return size.Name, nil
}

// productImageURL builds the absolute image URL from the configured public
// base URL rather than from ambient request state.
func productImageURL(baseURL, imagePath string) string {
	if strings.TrimSpace(imagePath) == "" {
		return ""
	}
	if strings.HasPrefix(imagePath, "http://") || strings.HasPrefix(imagePath, "https://") {
		return imagePath
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(imagePath, "/")
}
