// File: tripbot/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripbot/config"
	"tripbot/cron"
	"tripbot/database"
	alertRepoPkg "tripbot/database/repository/alert"
	bookingRepoPkg "tripbot/database/repository/booking"
	intentRepoPkg "tripbot/database/repository/intent"
	searchRepoPkg "tripbot/database/repository/search"
	userRepoPkg "tripbot/database/repository/user"
	"tripbot/handlers"
	"tripbot/models"
	"tripbot/routes"
	"tripbot/services/alerts"
	"tripbot/services/conversation"
	"tripbot/services/currency"
	"tripbot/services/notification"
	"tripbot/services/offers"
	"tripbot/services/payment"
	"tripbot/services/trip"
	"tripbot/services/user"
	"tripbot/telegram"
	"tripbot/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitCache()
	utils.InitSessionCache()

	// Background loops run until this context is cancelled on shutdown.
	ctx, stopWorkers := context.WithCancel(context.Background())

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())

	// repositories.
	userRepo := userRepoPkg.NewMongoUserRepo()
	bookingRepo := bookingRepoPkg.NewMongoBookingRepo()
	intentRepo := intentRepoPkg.NewMongoIntentRepo()
	searchRepo := searchRepoPkg.NewMongoSearchRepo()
	alertRepo := alertRepoPkg.NewMongoAlertRepo()

	// services.
	converter := currency.NewDefaultConverter(
		config.AppConfig.CurrencyAPIURL,
		config.AppConfig.USDToETBRate,
		logger,
	)

	tripClient := trip.NewHTTPClient(
		config.AppConfig.TripAPIURL,
		config.AppConfig.TripAPIKey,
		config.AppConfig.TripAPISecret,
		config.AppConfig.TripRatePerSec,
		logger,
	)
	tripService := &trip.DefaultTripService{
		Client:     tripClient,
		Converter:  converter,
		MaxResults: config.AppConfig.MaxSearchResults,
		Logger:     logger,
	}

	offerCache := offers.NewRedisCache(utils.GetCacheClient(), config.AppConfig.OfferTTL, logger)

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer queueClient.Close()

	// The messenger is attached after the bot exists; queued deliveries
	// cover the gap in between.
	dispatcher := notification.NewDefaultDispatcher(nil, queueClient, logger)

	gateways := map[string]payment.Gateway{
		models.MethodTeleBirr: payment.NewTeleBirrGateway(
			config.AppConfig.TeleBirrAPIURL,
			config.AppConfig.TeleBirrAppID,
			config.AppConfig.TeleBirrSecret,
			logger,
		),
		models.MethodCBEBirr: payment.NewCBEBirrGateway(
			config.AppConfig.CBEBirrAPIURL,
			config.AppConfig.CBEBirrAppID,
			config.AppConfig.CBEBirrSecret,
			logger,
		),
	}

	orchestrator := &payment.DefaultOrchestrator{
		Bookings:            bookingRepo,
		Intents:             intentRepo,
		Users:               userRepo,
		Gateways:            gateways,
		Trip:                tripService,
		Dispatcher:          dispatcher,
		FlightReminderHours: config.AppConfig.FlightReminderHours,
		Logger:              logger,
	}

	alertService := &alerts.DefaultAlertService{
		Repo:       alertRepo,
		MaxPerUser: config.AppConfig.MaxAlertsPerUser,
		ExpiryDays: config.AppConfig.AlertExpiryDays,
		Logger:     logger,
	}

	conversationService := &conversation.DefaultConversationService{
		Store:         conversation.NewRedisStore(utils.GetSessionClient(), config.AppConfig.SessionTimeout),
		Bookings:      bookingRepo,
		Intents:       intentRepo,
		Searches:      searchRepo,
		Trip:          tripService,
		Offers:        offerCache,
		Payments:      orchestrator,
		Alerts:        alertService,
		Dispatcher:    dispatcher,
		IdleTimeout:   config.AppConfig.SessionTimeout,
		MaxPassengers: config.AppConfig.MaxPassengers,
		Logger:        logger,
	}
	orchestrator.SetResolvedHook(conversationService.OnPaymentResolved)

	userService := &user.DefaultUserService{
		Repo: userRepo,
	}

	bot, err := telegram.NewBot(
		config.AppConfig.TelegramToken,
		userService,
		conversationService,
		alertService,
		bookingRepo,
		logger,
	)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to initialise telegram bot: %v", err)
	}
	dispatcher.Messenger = bot

	// Background workers.
	go cron.InitNotificationWorker(dispatcher)

	poller := &payment.Poller{
		Orchestrator: orchestrator,
		Intents:      intentRepo,
		Interval:     config.AppConfig.PaymentPollInterval,
		PollAfter:    config.AppConfig.PaymentPollAfter,
		MaxPolls:     config.AppConfig.PaymentMaxPolls,
		Logger:       logger,
	}
	poller.Start(ctx)

	alertEngine := &alerts.Engine{
		Alerts:     alertRepo,
		Trip:       tripService,
		Dispatcher: dispatcher,
		Interval:   config.AppConfig.AlertCheckInterval,
		Logger:     logger,
	}
	alertEngine.Start(ctx)

	sweeper := &conversation.Sweeper{
		Service:  conversationService,
		Interval: config.AppConfig.SweepInterval,
		Logger:   logger,
	}
	sweeper.Start(ctx)

	utils.StartHealthMonitor(map[string]*redis.Client{
		"cache":    utils.GetCacheClient(),
		"sessions": utils.GetSessionClient(),
	}, database.MongoClient)

	// Assemble the handler bundle.
	handlerBundle := &handlers.HandlerBundle{
		PaymentWebhookHandler: handlers.PaymentWebhookHandler(orchestrator, logger),
		HealthHandler:         handlers.HealthHandler(),
		ListBookingsHandler:   handlers.ListBookingsHandler(bookingRepo, logger),
		ListAlertsHandler:     handlers.ListAlertsHandler(alertService, logger),
		UpdateContactHandler:  handlers.UpdateContactHandler(userService, logger),
	}

	// Register routes with the assembled handler bundle.
	routes.RegisterRoutes(router, handlerBundle)

	go bot.Start()

	// Start the HTTP server.
	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	bot.Stop()
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
