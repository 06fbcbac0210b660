package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/inzira/ticketing-core/internal/cache"
	"github.com/inzira/ticketing-core/internal/config"
	"github.com/inzira/ticketing-core/internal/database"
	"github.com/inzira/ticketing-core/internal/handlers"
	"github.com/inzira/ticketing-core/internal/middleware"
	"github.com/inzira/ticketing-core/internal/payments"
	"github.com/inzira/ticketing-core/internal/services"
	"github.com/inzira/ticketing-core/pkg/events"
	"github.com/inzira/ticketing-core/pkg/jwt"
	"github.com/inzira/ticketing-core/pkg/ticket"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

const (
	seatUpdateBuffer   = 32
	seatUpdateInterval = 30 * time.Second
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Inzira ticketing core")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Repositories
	txRunner := database.NewTxRunner(db, logger, cfg.Database.TxMaxAttempts)
	tripRepo := database.NewScheduledTripRepository(db)
	bookingRepo := database.NewBookingRepository(db)
	paymentRepo := database.NewPaymentRepository(db)
	routePointRepo := database.NewRoutePointRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	// Outbound events: Kafka when brokers are configured, the log otherwise
	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		logger.WithField("topic", cfg.Kafka.Topic).Info("Kafka event publisher enabled")
	}
	defer publisher.Close()

	// Reaper leader lock, only needed when several instances run
	var leaderLock services.LeaderLock
	if cfg.Redis.Addr != "" {
		redisClient := cache.NewRedisClient(cfg.Redis)
		defer redisClient.Close()
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, reaper runs without a leader lock")
		} else {
			leaderLock = cache.NewRedisLock(redisClient)
			logger.Info("Redis leader lock enabled")
		}
	}

	// Payment providers
	stripeProvider := payments.NewStripeProvider(&cfg.Payment.Stripe, logger)
	payableProvider := payments.NewPAYableProvider(&cfg.Payment.PAYable, logger)
	registry := payments.NewRegistry(stripeProvider, payableProvider, payments.NewCashProvider())
	if !stripeProvider.IsConfigured() {
		logger.Warn("Stripe is not configured, checkout requests will fail")
	}
	if !payableProvider.IsConfigured() {
		logger.Warn("PAYable is not configured, checkout requests will fail")
	}

	// Services
	logger.Info("Initializing services...")
	hub := services.NewSeatUpdateHub(seatUpdateBuffer, logger)
	ledger := services.NewSeatLedger(tripRepo, logger)
	renderer := ticket.NewPDFRenderer(cfg.Tickets.OutputDir)
	bookingService := services.NewBookingService(
		txRunner, ledger, bookingRepo, tripRepo, routePointRepo, paymentRepo,
		hub, publisher, renderer, cfg.Booking.Currency, logger,
	)
	auditService := services.NewPaymentAuditService(auditRepo, logger)
	paymentService := services.NewPaymentService(
		txRunner, paymentRepo, bookingRepo, bookingService, registry,
		auditService, publisher, cfg.Booking.Currency, logger,
	)
	ticketService := services.NewTicketVerificationService(bookingRepo, tripRepo, publisher, logger)
	reaper := services.NewUnpaidBookingReaper(
		txRunner, ledger, bookingRepo, paymentRepo, hub, publisher, leaderLock,
		services.ReaperConfig{
			Interval:  cfg.Booking.ReaperInterval,
			Timeout:   cfg.Booking.PendingPaymentTimeout,
			BatchSize: cfg.Booking.ReaperBatchSize,
		},
		logger,
	)
	tripStatusService := services.NewTripStatusService(txRunner, tripRepo, cfg.Booking.TripStatusCronSpec, logger)

	// tokens are issued by the identity service, the expiry only matters for tooling
	jwtService := jwt.NewService(cfg.JWT.Secret, time.Hour)

	// Handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, bookingService, logger)
	ticketHandler := handlers.NewTicketHandler(ticketService, logger)
	adminHandler := handlers.NewAdminHandler(reaper, tripStatusService, bookingService, logger)
	seatUpdateHandler := handlers.NewSeatUpdateHandler(hub, seatUpdateInterval, logger)

	// Background jobs
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	reaper.Start(jobsCtx)
	if err := tripStatusService.Start(); err != nil {
		logger.Fatalf("Failed to start trip status job: %v", err)
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db, hub))

	auth := middleware.AuthMiddleware(jwtService, logger)

	v1 := router.Group("/api/v1")
	{
		bookings := v1.Group("/bookings")
		bookings.Use(auth)
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("/my", bookingHandler.GetMyBookings)
			bookings.GET("/reference/:reference", bookingHandler.GetBookingByReference)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.POST("/:id/cancel", bookingHandler.CancelBooking)
			bookings.POST("/:id/confirm",
				middleware.RequireRole(jwt.RoleAgent, jwt.RoleAgencyStaff, jwt.RoleAdmin),
				bookingHandler.ConfirmBooking)
		}

		agent := v1.Group("/agent")
		agent.Use(auth, middleware.RequireRole(jwt.RoleAgent))
		{
			agent.POST("/bookings", bookingHandler.CreateAgentBooking)
		}

		paymentRoutes := v1.Group("/payments")
		{
			// Provider-facing routes (public; signed or re-verified)
			paymentRoutes.POST("/webhook/:provider", paymentHandler.Webhook)
			paymentRoutes.POST("/confirm/:provider", paymentHandler.ConfirmPayment)
			paymentRoutes.POST("/callback/:provider", paymentHandler.Callback)

			protected := paymentRoutes.Group("")
			protected.Use(auth)
			{
				protected.POST("/initiate", paymentHandler.InitiatePayment)
				protected.GET("/status/:reference", paymentHandler.GetPaymentStatus)
				protected.POST("/:reference/cancel", paymentHandler.CancelPayment)
				protected.POST("/:reference/refund", middleware.RequireRole(jwt.RoleAdmin), paymentHandler.RefundPayment)
			}
		}

		tickets := v1.Group("/tickets")
		tickets.Use(auth, middleware.RequireRole(jwt.RoleDriver, jwt.RoleAgencyStaff, jwt.RoleAdmin))
		{
			tickets.POST("/verify", ticketHandler.VerifyTicket)
			tickets.GET("/trips/:trip_id/manifest", ticketHandler.GetTripManifest)
		}

		admin := v1.Group("/admin")
		admin.Use(auth, middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.POST("/reaper/run", adminHandler.RunReaper)
			admin.GET("/trips/stats", adminHandler.GetTripStats)
			admin.POST("/trips/advance-status", adminHandler.AdvanceTripStatus)
			admin.DELETE("/trips/:trip_id", adminHandler.DeleteTrip)
			admin.GET("/payments/:reference/audit", paymentHandler.GetAuditTrail)
		}

		v1.GET("/sse/seat-updates", seatUpdateHandler.Stream)
	}

	// WriteTimeout stays zero: seat update streams are long-lived
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Stopping background jobs...")
	stopJobs()
	reaper.Stop()
	tripStatusService.Stop()

	logger.Info("Server exited successfully")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, hub *services.SeatUpdateHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"database":        "healthy",
			"sse_subscribers": hub.SubscriberCount(),
			"version":         version,
			"timestamp":       time.Now().Unix(),
		})
	}
}
