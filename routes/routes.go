package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	"mailconnect/config"
	controller "mailconnect/controllers"
	"mailconnect/middleware"
	"mailconnect/services"
)

const accessLogFormat = "[${time}] ${status} - ${latency} ${method} ${path}\n"

// SetupAuthRoutes registers registration, token and account endpoints.
func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)
	authController := controller.NewAuthController(services.NewAccountService(db), authLogger)

	protected := middleware.Protected(db)
	loginLimiter := middleware.RateLimiter("login", config.AppConfig.RateLimitLogin)

	app.Post("/register/", loginLimiter, authController.Register)
	app.Post("/token/", loginLimiter, authController.Login)
	app.Post("/token/refresh/", authController.Refresh)
	app.Get("/csrf/", authController.CSRFToken)
	app.Delete("/account/", protected, authController.DeleteAccount)

	if config.AppConfig.GoogleEnabled() {
		app.Get("/auth/google", authController.GoogleOAuth)
		app.Get("/auth/google/callback", authController.GoogleOAuthCallback)
	}

	authLogger.Println("Authentication routes initialized successfully")
}

// SetupAPIRoutes registers the profile and email account endpoints.
func SetupAPIRoutes(app *fiber.App, db *gorm.DB, tester services.ConnectionTester) {
	profileController := controller.NewProfileController(
		services.NewProfileService(db),
		log.New(os.Stdout, "PROFILE: ", log.LstdFlags),
	)
	emailAccountController := controller.NewEmailAccountController(
		services.NewEmailAccountService(db, tester),
		log.New(os.Stdout, "EMAIL_ACCOUNTS: ", log.LstdFlags),
	)

	protected := middleware.Protected(db)
	testLimiter := middleware.RateLimiter("connection_test", config.AppConfig.RateLimitConnectionTest)

	// Profile routes
	app.Get("/profile/", protected, profileController.GetProfile)
	app.Put("/profile/", protected, profileController.UpdateProfile)
	app.Patch("/profile/", protected, profileController.UpdateProfile)
	app.Get("/user/", protected, profileController.GetUserData)

	// Email account routes
	app.Get("/email-accounts/", protected, emailAccountController.ListEmailAccounts)
	app.Post("/email-accounts/", protected, emailAccountController.AddEmailAccount)
	app.Post("/email-accounts/:email_id/test/", protected, testLimiter, emailAccountController.TestEmailAccount)
	app.Delete("/email-accounts/:email_id?", protected, emailAccountController.RemoveEmailAccount)
}

func SetupRoutes(app *fiber.App, db *gorm.DB, tester services.ConnectionTester) {
	app.Use(logger.New(logger.Config{
		Format: accessLogFormat,
	}))
	app.Use(middleware.CSRF(config.AppConfig.IsProduction()))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAuthRoutes(app, db)
	SetupAPIRoutes(app, db, tester)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
