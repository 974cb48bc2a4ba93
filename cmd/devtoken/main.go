// devtoken выпускает токен для локальной разработки, пока провайдер идентификации не подключён.
// Профиль с таким auth_id должен существовать в одной из таблиц ролей.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/linemk/market-checkout/internal/config"
	security "github.com/linemk/market-checkout/internal/jwt-new"
)

func main() {
	var authID string
	flag.StringVar(&authID, "auth-id", "", "subject of the token (users.auth_id, vendors.auth_id, ...)")
	flag.Parse()

	if authID == "" {
		log.Fatal("-auth-id is required")
	}

	_ = godotenv.Load()
	cfg := config.MustLoad()

	token, err := security.NewToken(authID, cfg.JWT.Secret, time.Duration(cfg.JWT.TokenTTL)*time.Minute)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
}
