// cmd/devtoken выпускает JWT для существующего пользователя.
// Нужен для локальной разработки: в продакшене токены выдаёт сервис авторизации.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"plugstore/internal/config"
	userrepository "plugstore/internal/user/repository"
	"plugstore/pkg/db"
	"plugstore/pkg/jwt"
)

func main() {
	userID := flag.Int64("user", 0, "user id")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID <= 0 {
		log.Fatal("-user is required")
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	// Подключение к БД
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u, err := userrepository.NewPostgresUserRepository(database).GetByID(ctx, *userID)
	if err != nil {
		log.Fatalf("user %d: %v", *userID, err)
	}

	token, err := jwt.GenerateToken(cfg.JWTSecret, u.ID, u.IsAdmin, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
