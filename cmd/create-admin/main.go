package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/yourusername/exam-portal-api/internal/config"
	"github.com/yourusername/exam-portal-api/internal/domain/entity"
	pgRepo "github.com/yourusername/exam-portal-api/internal/repository/postgres"
	"github.com/yourusername/exam-portal-api/pkg/database"
)

// Утилита для создания первого администратора:
//
//	go run ./cmd/create-admin -name "Admin" -email admin@example.com -password secret123
func main() {
	name := flag.String("name", "", "имя администратора")
	email := flag.String("email", "", "email администратора")
	password := flag.String("password", "", "пароль (минимум 6 символов)")
	flag.Parse()

	if *name == "" || *email == "" || len(*password) < 6 {
		flag.Usage()
		os.Exit(2)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.MigrateDB(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	userRepo := pgRepo.NewUserRepo(db)

	user := &entity.User{
		Name:     strings.TrimSpace(*name),
		Email:     strings.ToLower(strings.TrimSpace(*email)),
		Password:  *password, // будет захеширован в BeforeSave
		Role:      entity.RoleAdmin,
	}

	if err := userRepo.Create(user); err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}

	log.Printf("Администратор создан: ID=%d email=%s", user.ID, user.Email)
}
