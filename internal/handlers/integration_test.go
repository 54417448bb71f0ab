package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"shopapi/internal/cache"
	"shopapi/internal/database"
	"shopapi/internal/middleware"
	"shopapi/internal/notify"
)

const (
	testSecret  = "integration-secret"
	testBaseURL = "http://shop.test"
)

func setupTestDB(t *testing.T) (*mongo.Database, func()) {
	if testing.Short() {
		t.Skip("integration test requires docker")
	}

	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := database.Connect(uri)
	require.NoError(t, err)

	db := client.Database("shopapi_test")
	require.NoError(t, database.EnsureCartIndexes(db))
	require.NoError(t, database.EnsureOrderIndexes(db))
	require.NoError(t, database.EnsureCouponIndexes(db))

	cleanup := func() {
		_ = client.Disconnect(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return db, cleanup
}

func testRouter(db *mongo.Database, notifier notify.Notifier) *gin.Engine {
	gin.SetMode(gin.TestMode)

	cartCache := cache.CartCache(cache.Noop{})
	userAuth := middleware.UserAuth(testSecret)

	r := gin.New()
	api := r.Group("/api")
	{
		api.POST("/checkout", Checkout(db, cartCache, testSecret))
		api.GET("/:orderId", GetOrder(db))
		api.PATCH("/:orderId", UpdateOrderStatus(db))

		api.GET("/order", userAuth, ListOrders(db, testBaseURL))
		api.POST("/order", userAuth, CreateOrder(db))
		api.POST("/delivery", userAuth, AttachDelivery(db, notifier))

		api.GET("/cart", userAuth, GetCart(db, cartCache, testBaseURL))
		api.POST("/cart", userAuth, AddCartItem(db, cartCache))
		api.PATCH("/cart", userAuth, UpdateCartItem(db, cartCache))
		api.DELETE("/cart", userAuth, RemoveCartItem(db, cartCache))
		api.POST("/cart/merge", userAuth, MergeCart(db, cartCache))

		api.GET("/coupon", userAuth, RedeemCoupon(db))
	}
	return r
}

func bearerToken(t *testing.T, userID primitive.ObjectID) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": userID.Hex()})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func seedProduct(t *testing.T, db *mongo.Database, id, name string, price int64) {
	_, err := db.Collection("products").InsertOne(context.Background(), bson.M{
		"_id":       id,
		"name":      name,
		"price":     price,
		"imagePath": "/media/" + id + ".jpg",
		"createdAt": time.Now(),
	})
	require.NoError(t, err)
}

func countDocs(t *testing.T, db *mongo.Database, collection string, filter bson.M) int64 {
	count, err := db.Collection(collection).CountDocuments(context.Background(), filter)
	require.NoError(t, err)
	return count
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.OrderPlacedEvent
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, event notify.OrderPlacedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

/* =========================
   CART
========================= */

func TestCartEndpoints(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	r := testRouter(db, notify.Noop{})
	seedProduct(t, db, "widget-1", "Widget", 100)

	userID := primitive.NewObjectID()
	token := bearerToken(t, userID)

	type lineView struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
		Price     int64  `json:"price"`
		Image     string `json:"image"`
	}
	getCart := func() []lineView {
		w := doJSON(t, r, http.MethodGet, "/api/cart", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var lines []lineView
		decodeBody(t, w, &lines)
		return lines
	}

	t.Run("add twice accumulates into one line", func(t *testing.T) {
		body := gin.H{"productId": "widget-1", "quantity": 2, "price": 100}
		w := doJSON(t, r, http.MethodPost, "/api/cart", token, body)
		require.Equal(t, http.StatusCreated, w.Code)
		w = doJSON(t, r, http.MethodPost, "/api/cart", token, body)
		require.Equal(t, http.StatusCreated, w.Code)

		lines := getCart()
		require.Len(t, lines, 1)
		assert.Equal(t, 4, lines[0].Quantity)
		assert.Equal(t, int64(100), lines[0].Price)
		assert.Equal(t, testBaseURL+"/media/widget-1.jpg", lines[0].Image)
	})

	t.Run("add unknown product", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/cart", token, gin.H{"productId": "ghost"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update rejects bad quantities and keeps the line", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPatch, "/api/cart", token, gin.H{"productId": "widget-1", "quantity": "abc"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doJSON(t, r, http.MethodPatch, "/api/cart", token, gin.H{"productId": "widget-1", "quantity": 0})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		lines := getCart()
		require.Len(t, lines, 1)
		assert.Equal(t, 4, lines[0].Quantity, "failed updates must not change the line")
	})

	t.Run("update overwrites quantity", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPatch, "/api/cart", token, gin.H{"productId": "widget-1", "quantity": "7"})
		require.Equal(t, http.StatusOK, w.Code)

		lines := getCart()
		require.Len(t, lines, 1)
		assert.Equal(t, 7, lines[0].Quantity)
	})

	t.Run("merge skips unresolvable items", func(t *testing.T) {
		body := gin.H{"items": []gin.H{
			{"productId": "widget-1", "quantity": 1, "price": 100},
			{"productId": "ghost", "quantity": 3},
			{"quantity": 2},
		}}
		w := doJSON(t, r, http.MethodPost, "/api/cart/merge", token, body)
		require.Equal(t, http.StatusOK, w.Code)

		var merged []lineView
		decodeBody(t, w, &merged)
		require.Len(t, merged, 1)
		assert.Equal(t, 8, merged[0].Quantity, "merge accumulates onto the existing line")
	})

	t.Run("merge with empty list", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/cart/merge", token, gin.H{"items": []gin.H{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("remove item", func(t *testing.T) {
		w := doJSON(t, r, http.MethodDelete, "/api/cart", token, gin.H{"productId": "widget-1"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, getCart())

		w = doJSON(t, r, http.MethodDelete, "/api/cart", token, gin.H{"productId": "widget-1"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("requires auth", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/cart", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

/* =========================
   CHECKOUT (flow A)
========================= */

func checkoutPayload(items []gin.H, subtotal, shipping int64) gin.H {
	return gin.H{
		"cartItems":       items,
		"phoneNumber":     "555-0101",
		"firstName":       "Alice",
		"lastName":        "Liddell",
		"email":           "alice@example.com",
		"shippingAddress": "1 Rabbit Hole",
		"subtotal":        subtotal,
		"shippingCost":    shipping,
	}
}

func TestCheckoutCreatesOrderAndClearsCart(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	r := testRouter(db, notify.Noop{})
	seedProduct(t, db, "widget-1", "Widget", 100)
	seedProduct(t, db, "gadget-1", "Gadget", 50)

	userID := primitive.NewObjectID()
	token := bearerToken(t, userID)

	for _, body := range []gin.H{
		{"productId": "widget-1", "quantity": 2, "price": 100},
		{"productId": "gadget-1", "quantity": 1, "price": 50},
	} {
		w := doJSON(t, r, http.MethodPost, "/api/cart", token, body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	payload := checkoutPayload([]gin.H{
		{"productId": "widget-1", "quantity": 2, "price": 100},
		{"productId": "gadget-1", "quantity": 1, "price": 50},
	}, 250, 20)

	w := doJSON(t, r, http.MethodPost, "/api/checkout", token, payload)
	require.Equal(t, http.StatusCreated, w.Code)

	var view struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		OrderItems []struct {
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
			Price     int64  `json:"price"`
		} `json:"orderItems"`
		Delivery struct {
			PaymentMethod string `json:"paymentMethod"`
			PaymentStatus string `json:"paymentStatus"`
			Subtotal      int64  `json:"subtotal"`
			ShippingCost  int64  `json:"shippingCost"`
			Discount      int64  `json:"discount"`
			PaymentAmount int64  `json:"paymentAmount"`
		} `json:"delivery"`
	}
	decodeBody(t, w, &view)

	assert.Equal(t, "Placed", view.Status)
	require.Len(t, view.OrderItems, 2)
	assert.Equal(t, int64(100), view.OrderItems[0].Price)
	assert.Equal(t, int64(50), view.OrderItems[1].Price)
	assert.Equal(t, "COD", view.Delivery.PaymentMethod)
	assert.Equal(t, "Pending", view.Delivery.PaymentStatus)
	assert.Equal(t, int64(270), view.Delivery.PaymentAmount, "paymentAmount is subtotal + shippingCost")
	assert.Equal(t, int64(0), view.Delivery.Discount)

	assert.Equal(t, int64(1), countDocs(t, db, "orders", bson.M{}))
	assert.Equal(t, int64(1), countDocs(t, db, "deliveries", bson.M{}))
	assert.Equal(t, int64(0), countDocs(t, db, "carts", bson.M{"userId": userID}), "checkout clears the cart")
}

func TestCheckoutRollbackLeavesNothingBehind(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	r := testRouter(db, notify.Noop{})
	seedProduct(t, db, "widget-1", "Widget", 100)

	t.Run("unresolvable product", func(t *testing.T) {
		payload := checkoutPayload([]gin.H{
			{"productId": "widget-1", "quantity": 1, "price": 100},
			{"productId": "ghost", "quantity": 1, "price": 10},
		}, 110, 20)

		w := doJSON(t, r, http.MethodPost, "/api/checkout", "", payload)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, int64(0), countDocs(t, db, "orders", bson.M{}))
		assert.Equal(t, int64(0), countDocs(t, db, "deliveries", bson.M{}))
	})

	t.Run("missing delivery fields", func(t *testing.T) {
		payload := checkoutPayload([]gin.H{{"productId": "widget-1", "quantity": 1, "price": 100}}, 100, 20)
		payload["phoneNumber"] = ""

		w := doJSON(t, r, http.MethodPost, "/api/checkout", "", payload)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, int64(0), countDocs(t, db, "orders", bson.M{}))
	})

	t.Run("empty cart", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/checkout", "", checkoutPayload([]gin.H{}, 0, 0))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, int64(0), countDocs(t, db, "orders", bson.M{}))
	})
}

/* =========================
   ORDER-THEN-DELIVER (flow B)
========================= */

func TestOrderThenDeliverFlow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	notifier := &recordingNotifier{}
	r := testRouter(db, notifier)

	userID := primitive.NewObjectID()
	token := bearerToken(t, userID)

	t.Run("empty cart lines rejected", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/order", token, gin.H{"carts": []gin.H{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	var orderID string
	t.Run("bare order starts Pending", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/order", token, gin.H{"carts": []gin.H{
			{"productId": "widget-1", "name": "Widget", "quantity": 2, "price": 100},
		}})
		require.Equal(t, http.StatusCreated, w.Code)

		var view struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		decodeBody(t, w, &view)
		assert.Equal(t, "Pending", view.Status)
		orderID = view.ID
	})

	t.Run("delivery flips status and notifies", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/delivery", token, gin.H{
			"order":           orderID,
			"phoneNumber":     "555-0102",
			"firstName":       "Bob",
			"lastName":        "Stone",
			"email":           "bob@example.com",
			"shippingAddress": "2 Quarry Road",
			"subtotal":        200,
			"shippingCost":    20,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var view struct {
			Status   string `json:"status"`
			Delivery struct {
				PaymentAmount int64 `json:"paymentAmount"`
			} `json:"delivery"`
		}
		decodeBody(t, w, &view)
		assert.Equal(t, "Placed", view.Status)
		assert.Equal(t, int64(220), view.Delivery.PaymentAmount)

		require.Len(t, notifier.events, 1)
		event := notifier.events[0]
		assert.Equal(t, orderID, event.OrderID)
		assert.Equal(t, int64(220), event.PaymentAmount)
		require.Len(t, event.Items, 1)
		assert.Equal(t, "Widget", event.Items[0].ProductName)
	})

	t.Run("second delivery for the same order rejected", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/delivery", token, gin.H{
			"order":           orderID,
			"phoneNumber":     "555-0102",
			"firstName":       "Bob",
			"lastName":        "Stone",
			"shippingAddress": "2 Quarry Road",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("cannot deliver someone else's order", func(t *testing.T) {
		otherToken := bearerToken(t, primitive.NewObjectID())
		w := doJSON(t, r, http.MethodPost, "/api/delivery", otherToken, gin.H{
			"order":           orderID,
			"phoneNumber":     "555-0103",
			"firstName":       "Eve",
			"lastName":        "Drop",
			"shippingAddress": "3 Sly Lane",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

/* =========================
   ORDER READ / STATUS / LIST
========================= */

func TestOrderReadUpdateAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	r := testRouter(db, notify.Noop{})
	seedProduct(t, db, "widget-1", "Widget", 100)

	token := bearerToken(t, primitive.NewObjectID())

	placeOrder := func(email string) string {
		payload := checkoutPayload([]gin.H{{"productId": "widget-1", "quantity": 1, "price": 100}}, 100, 20)
		payload["email"] = email
		w := doJSON(t, r, http.MethodPost, "/api/checkout", "", payload)
		require.Equal(t, http.StatusCreated, w.Code)
		var view struct {
			ID string `json:"id"`
		}
		decodeBody(t, w, &view)
		return view.ID
	}

	aliceOrder := placeOrder("alice@example.com")
	bobOrder := placeOrder("bob@example.com")

	t.Run("get order", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/"+aliceOrder, "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var view struct {
			Status   string `json:"status"`
			Delivery struct {
				Email string `json:"email"`
			} `json:"delivery"`
		}
		decodeBody(t, w, &view)
		assert.Equal(t, "Placed", view.Status)
		assert.Equal(t, "alice@example.com", view.Delivery.Email)
	})

	t.Run("get unknown order", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/"+primitive.NewObjectID().Hex(), "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("status overwrite accepts any string", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPatch, "/api/"+bobOrder, "", gin.H{"status": "Shipped"})
		require.Equal(t, http.StatusOK, w.Code)

		var view struct {
			Status string `json:"status"`
		}
		decodeBody(t, w, &view)
		assert.Equal(t, "Shipped", view.Status)
	})

	type envelope struct {
		Count       int64 `json:"count"`
		TotalPages  int64 `json:"total_pages"`
		CurrentPage int64 `json:"current_page"`
		Results     []struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Delivery struct {
				Email string `json:"email"`
			} `json:"delivery"`
		} `json:"results"`
	}
	list := func(query string) envelope {
		w := doJSON(t, r, http.MethodGet, "/api/order"+query, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var env envelope
		decodeBody(t, w, &env)
		return env
	}

	t.Run("status filter is exact", func(t *testing.T) {
		env := list("?status=Placed")
		require.Equal(t, int64(1), env.Count)
		assert.Equal(t, aliceOrder, env.Results[0].ID)

		assert.Equal(t, int64(0), list("?status=placed").Count, "status match is case-sensitive")
	})

	t.Run("search matches email case-insensitively", func(t *testing.T) {
		env := list("?search=ALICE")
		require.Equal(t, int64(1), env.Count)
		assert.Equal(t, "alice@example.com", env.Results[0].Delivery.Email)
	})

	t.Run("search matches order id substring", func(t *testing.T) {
		env := list("?search=" + bobOrder[8:16])
		require.GreaterOrEqual(t, env.Count, int64(1))
	})

	t.Run("search and status combine", func(t *testing.T) {
		assert.Equal(t, int64(0), list("?search=alice&status=Shipped").Count)
		assert.Equal(t, int64(1), list("?search=alice&status=Placed").Count)
	})

	t.Run("envelope math", func(t *testing.T) {
		env := list("")
		assert.Equal(t, int64(2), env.Count)
		assert.Equal(t, int64(1), env.TotalPages)
		assert.Equal(t, int64(1), env.CurrentPage)
	})

	t.Run("listing requires auth", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/order", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("page past the end", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/order?page=99", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

/* =========================
   COUPON
========================= */

func TestCouponRedeem(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	r := testRouter(db, notify.Noop{})
	ctx := context.Background()

	_, err := db.Collection("coupons").InsertOne(ctx, bson.M{"code": "SAVE10", "amount": int64(10), "percentage": 0.0})
	require.NoError(t, err)

	userID := primitive.NewObjectID()
	token := bearerToken(t, userID)

	t.Run("fresh code returns terms", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/coupon?code=SAVE10", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Status string `json:"status"`
			Amount int64  `json:"amount"`
		}
		decodeBody(t, w, &body)
		assert.Equal(t, "Success", body.Status)
		assert.Equal(t, int64(10), body.Amount)
	})

	t.Run("other users' redemptions do not block", func(t *testing.T) {
		_, err := db.Collection("coupon_redemptions").InsertOne(ctx, bson.M{
			"couponCode": "SAVE10",
			"userId":     primitive.NewObjectID(),
		})
		require.NoError(t, err)

		w := doJSON(t, r, http.MethodGet, "/api/coupon?code=SAVE10", token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("already used by this user", func(t *testing.T) {
		_, err := db.Collection("coupon_redemptions").InsertOne(ctx, bson.M{
			"couponCode": "SAVE10",
			"userId":     userID,
		})
		require.NoError(t, err)

		w := doJSON(t, r, http.MethodGet, "/api/coupon?code=SAVE10", token, nil)
		assert.Equal(t, http.StatusConflict, w.Code)

		var body struct {
			Code string `json:"code"`
		}
		decodeBody(t, w, &body)
		assert.Equal(t, "already_used", body.Code)
	})

	t.Run("unknown code", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/coupon?code=NOPE", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing code", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/coupon", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
