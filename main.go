package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"mailconnect/config"
	"mailconnect/middleware"
	"mailconnect/routes"
	"mailconnect/services"
	"mailconnect/utils"
	"mailconnect/worker"
)

func main() {
	logger := log.New(os.Stdout, "MAILCONNECT: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	utils.ConfigureLogger(config.AppConfig.Environment)

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Failed to initialize Sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "mailconnect",
		ErrorHandler: middleware.ErrorHandler,
	})
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(config.AppConfig.AllowedOrigins)))

	tester := services.NewMailConnectionTester(config.AppConfig.MailDialTimeout)
	routes.SetupRoutes(app, config.DB, tester)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.AppConfig.MonitorEnabled {
		monitor := worker.NewAccountMonitor(
			services.NewEmailAccountService(config.DB, tester),
			config.AppConfig.MonitorInterval,
			log.New(os.Stdout, "MONITOR: ", log.LstdFlags),
		)
		go monitor.Start(ctx)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		logger.Println("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Printf("Server shutdown failed: %v", err)
		}
	}()

	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
