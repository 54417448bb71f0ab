package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"shopapi/internal/cache"
	"shopapi/internal/config"
	"shopapi/internal/database"
	"shopapi/internal/handlers"
	"shopapi/internal/middleware"
	"shopapi/internal/notify"
)

func main() {
	config.Load()

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		log.Fatal(err)
	}

	db := client.Database(config.AppEnv.DBName)

	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureCartIndexes(db); err != nil {
		log.Printf("cart index warning: %v", err)
	}
	if err := database.EnsureOrderIndexes(db); err != nil {
		log.Printf("order index warning: %v", err)
	}
	if err := database.EnsureCouponIndexes(db); err != nil {
		log.Printf("coupon index warning: %v", err)
	}

	var cartCache cache.CartCache = cache.Noop{}
	if config.AppEnv.RedisAddr != "" {
		cartCache = cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: config.AppEnv.RedisAddr}))
		log.Println("cart cache enabled on", config.AppEnv.RedisAddr)
	}

	var notifier notify.Notifier = notify.Noop{}
	if len(config.AppEnv.KafkaBrokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(config.AppEnv.KafkaBrokers...)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
		log.Println("order notifications enabled on", config.AppEnv.KafkaBrokers)
	}

	r := gin.Default()

	userAuth := middleware.UserAuth(config.AppEnv.JWTSecret)

	api := r.Group("/api")
	{
		api.POST("/checkout", handlers.Checkout(db, cartCache, config.AppEnv.JWTSecret))
		api.GET("/:orderId", handlers.GetOrder(db))
		api.PATCH("/:orderId", handlers.UpdateOrderStatus(db))

		api.GET("/order", userAuth, handlers.ListOrders(db, config.AppEnv.PublicBaseURL))
		api.POST("/order", userAuth, handlers.CreateOrder(db))
		api.POST("/delivery", userAuth, handlers.AttachDelivery(db, notifier))

		api.GET("/cart", userAuth, handlers.GetCart(db, cartCache, config.AppEnv.PublicBaseURL))
		api.POST("/cart", userAuth, handlers.AddCartItem(db, cartCache))
		api.PATCH("/cart", userAuth, handlers.UpdateCartItem(db, cartCache))
		api.DELETE("/cart", userAuth, handlers.RemoveCartItem(db, cartCache))
		api.POST("/cart/merge", userAuth, handlers.MergeCart(db, cartCache))

		api.GET("/coupon", userAuth, handlers.RedeemCoupon(db))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(config.AppEnv.JWTSecret))
	{
		admin.DELETE("/orders/:id", handlers.DeleteOrder(db))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}
