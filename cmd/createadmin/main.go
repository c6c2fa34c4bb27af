package main

import (
	"context"
	"log"
	"os"

	"mailconnect/config"
	"mailconnect/services"
)

const (
	adminUsername = "admin"
	adminEmail    = "admin@example.com"
)

func main() {
	logger := log.New(os.Stdout, "CREATEADMIN: ", log.LstdFlags)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin"
		logger.Println("ADMIN_PASSWORD not set, using the default password")
	}

	created, err := services.NewAccountService(config.DB).
		CreateSuperuser(context.Background(), adminUsername, adminEmail, password)
	if err != nil {
		logger.Fatalf("Failed to create admin user: %v", err)
	}
	if !created {
		logger.Println("Admin user already exists")
		return
	}
	logger.Printf("Successfully created superuser with username '%s'", adminUsername)
}
