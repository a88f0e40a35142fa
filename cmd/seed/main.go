package main

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vigil-labs/vigil/backend/internal/models"
)

func main() {
	dbPath := os.Getenv("VIGIL_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/vigil.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.VisitorFingerprint{},
		&models.SecurityLogEntry{},
		&models.HoneypotConfig{},
		&models.RateLimitPolicy{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	fmt.Println("✓ Database migrated successfully")

	// Seed rate limit policies
	for _, policy := range models.DefaultRateLimitPolicies() {
		result := db.Where("class = ?", policy.Class).FirstOrCreate(&policy)
		if result.Error != nil {
			log.Printf("Failed to seed rate limit policy %s: %v", policy.Class, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created rate limit policy: %s (%d tokens / %dms)\n", policy.Class, policy.MaxTokens, policy.WindowMs)
		} else {
			fmt.Printf("  Rate limit policy already exists: %s\n", policy.Class)
		}
	}

	// Seed honeypot decoys
	honeypots := []models.HoneypotConfig{
		{
			UUID:            uuid.NewString(),
			Name:            "Scraper listing decoy",
			PathPattern:     "/api/v1/catalog*",
			Method:          "GET",
			Priority:        10,
			Enabled:         true,
			ResponseType:    models.ResponseFakeListing,
			ResponseDelayMs: 1500,
			BotOnly:         true,
			MaxTrustScore:   40,
		},
		{
			UUID:            uuid.NewString(),
			Name:            "Credential stuffing tarpit",
			PathPattern:     "/wp-login.php",
			Method:          "",
			Priority:        5,
			Enabled:         true,
			ResponseType:    models.ResponseFakeError,
			ResponseDelayMs: 3000,
			BotOnly:         false,
			MaxTrustScore:   100,
		},
		{
			UUID:            uuid.NewString(),
			Name:            "Admin probe decoy",
			PathPattern:     "/phpmyadmin*",
			Method:          "",
			Priority:        5,
			Enabled:         true,
			ResponseType:    models.ResponseEmpty,
			ResponseDelayMs: 500,
			BotOnly:         false,
			MaxTrustScore:   100,
		},
	}

	for _, hp := range honeypots {
		result := db.Where("name = ?", hp.Name).FirstOrCreate(&hp)
		if result.Error != nil {
			log.Printf("Failed to seed honeypot %s: %v", hp.Name, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created honeypot: %s (%s %s)\n", hp.Name, hp.Method, hp.PathPattern)
		} else {
			fmt.Printf("  Honeypot already exists: %s\n", hp.Name)
		}
	}

	// Seed default admin user
	defaultAdminEmail := os.Getenv("VIGIL_DEFAULT_ADMIN_EMAIL")
	if defaultAdminEmail == "" {
		defaultAdminEmail = "admin@localhost"
	}
	defaultAdminPassword := os.Getenv("VIGIL_DEFAULT_ADMIN_PASSWORD")

	user := models.User{
		UUID:    uuid.NewString(),
		Email:   defaultAdminEmail,
		Name:    "Administrator",
		Role:    "admin",
		Enabled: true,
	}

	if defaultAdminPassword != "" {
		if err := user.SetPassword(defaultAdminPassword); err != nil {
			log.Fatalf("Failed to hash default admin password: %v", err)
		}
	} else {
		// Placeholder hash that never matches; reset via VIGIL_DEFAULT_ADMIN_PASSWORD
		user.PasswordHash = "$2a$10$example_hashed_password"
	}

	var existing models.User
	if err := db.Where("email = ?", user.Email).First(&existing).Error; err != nil {
		if result := db.Create(&user); result.Error != nil {
			log.Printf("Failed to seed user: %v", result.Error)
		} else {
			fmt.Printf("✓ Created default user: %s\n", user.Email)
		}
	} else {
		fmt.Printf("  User already exists: %s\n", existing.Email)
	}

	fmt.Println("\n✓ Database seeding completed successfully!")
}
