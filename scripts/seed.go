//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gearguard/gearguard/internal/auth"
	"github.com/gearguard/gearguard/internal/database"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/pkg/config"
	"github.com/gearguard/gearguard/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// Create admin user with a default organization
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService)

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "admin123!"
	}
	if name == "" {
		name = "Admin"
	}

	resp, err := authService.Register(context.Background(), auth.RegisterInput{
		Email:    email,
		Password: password,
		Name:     name,
		OrgName:  "Default Organization",
	})

	if err != nil {
		if err == auth.ErrUserExists {
			fmt.Printf("Admin user already exists: %s\n", email)
			return
		}
		log.Fatalf("failed to create admin user: %v", err)
	}

	org := resp.User.Organization

	// Seed a maintenance team and some equipment so the board isn't empty.
	team := models.Team{
		OrganizationID: org.ID,
		Name:           "Mechanical",
		Description:    "General mechanical maintenance",
	}
	if err := db.Create(&team).Error; err != nil {
		log.Fatalf("failed to create team: %v", err)
	}

	category := models.EquipmentCategory{
		OrganizationID: org.ID,
		Name:           "Pumps",
	}
	if err := db.Create(&category).Error; err != nil {
		log.Fatalf("failed to create category: %v", err)
	}

	equipment := []models.Equipment{
		{
			OrganizationID: org.ID,
			Name:           "Coolant Pump A1",
			SerialNumber:   "CP-A1-0001",
			CategoryID:     &category.ID,
			TeamID:         &team.ID,
			Status:         models.EquipmentStatusActive,
		},
		{
			OrganizationID: org.ID,
			Name:           "Hydraulic Press 3",
			SerialNumber:   "HP-3-0042",
			TeamID:         &team.ID,
			Status:         models.EquipmentStatusActive,
		},
	}
	for i := range equipment {
		if err := db.Create(&equipment[i]).Error; err != nil {
			log.Fatalf("failed to create equipment: %v", err)
		}
	}

	fmt.Printf("Admin user created successfully!\n")
	fmt.Printf("Email: %s\n", resp.User.Email)
	fmt.Printf("Organization: %s\n", org.Name)
	fmt.Printf("Token: %s\n", resp.Token)
}
