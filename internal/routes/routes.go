package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/procura/internal/config"
	"github.com/example/procura/internal/handlers"
	"github.com/example/procura/internal/middleware"
	"github.com/example/procura/internal/repository"
	"github.com/example/procura/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	store := repository.NewStore(db)

	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	supplierService := services.NewSupplierService(services.SupplierConfig{
		BaseURL: cfg.SupplierBaseURL,
		APIKey:  cfg.SupplierAPIKey,
		Enabled: cfg.SupplierEnabled,
	})
	payflowClient := services.NewPayflowClient(services.PayflowConfig{
		BaseURL:    cfg.PayflowBaseURL,
		MerchantID: cfg.PayflowMerchantID,
		SecretKey:  cfg.PayflowSecretKey,
		ReturnURL:  cfg.PayflowReturnURL,
		Timeout:    cfg.PayflowTimeout,
		Enabled:    cfg.PayflowEnabled,
	})

	cartService := services.NewCartService(store.Products(), store.Carts())
	walletService := services.NewWalletService(store.Wallets())
	paymentService := services.NewPaymentService(walletService, payflowClient)
	trackingService := services.NewTrackingService(store.Orders(), store)
	orderService := services.NewOrderService(services.OrderServiceConfig{
		Products:         store.Products(),
		Carts:            store.Carts(),
		Orders:           store.Orders(),
		Kits:             store.Kits(),
		Tx:               store,
		Cart:             cartService,
		Payments:         paymentService,
		Supplier:         supplierService,
		Telegram:         telegramService,
		ShippingFee:      cfg.ShippingFee,
		DeliveryEstimate: cfg.DeliveryEstimate,
	})

	authHandler := handlers.NewAuthHandler(db, cfg)
	productHandler := handlers.NewProductHandler(store.Products())
	cartHandler := handlers.NewCartHandler(cartService)
	orderHandler := handlers.NewOrderHandler(orderService, trackingService)
	walletHandler := handlers.NewWalletHandler(walletService)
	kitHandler := handlers.NewKitHandler(store.Kits())
	payflowHandler := handlers.NewPayflowHandler(orderService)
	profileHandler := handlers.NewProfileHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Catalog
	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Post("/", productHandler.CreateProduct)
	products.Get("/:id", productHandler.GetProduct)
	products.Put("/:id", productHandler.UpdateProduct)

	// Subscription kits
	kits := api.Group("/kits")
	kits.Get("/", kitHandler.ListKits)
	kits.Get("/:id", kitHandler.GetKit)

	// Payflow gateway callback
	payflow := api.Group("/payflow")
	payflow.Post("/callback", middleware.PayflowAuthMiddleware(cfg.PayflowSecretKey), payflowHandler.Callback)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	cart := protected.Group("/cart")
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/items", cartHandler.AddItem)
	cart.Put("/items/:id", cartHandler.UpdateItem)
	cart.Delete("/items/:id", cartHandler.RemoveItem)
	cart.Delete("/", cartHandler.Clear)
	cart.Post("/validate", cartHandler.Validate)
	cart.Get("/totals", cartHandler.Totals)

	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Post("/orders/:id/cancel", orderHandler.CancelOrder)
	protected.Put("/orders/:id/status", orderHandler.UpdateStatus)
	protected.Post("/orders/:id/verify-payment", orderHandler.VerifyPayment)
	protected.Post("/orders/:id/confirm-settlement", orderHandler.ConfirmSettlement)
	protected.Get("/orders/:id/tracking", orderHandler.ListTrackingEvents)
	protected.Post("/orders/:id/tracking", orderHandler.AppendTrackingEvent)

	wallet := protected.Group("/wallet")
	wallet.Get("/", walletHandler.Balance)
	wallet.Get("/transactions", walletHandler.Transactions)
	wallet.Post("/credit", walletHandler.Credit)
	wallet.Get("/reconcile", walletHandler.Reconcile)

	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Post("/profile/addresses", profileHandler.CreateAddress)
	protected.Delete("/profile/addresses/:id", profileHandler.DeleteAddress)
}
