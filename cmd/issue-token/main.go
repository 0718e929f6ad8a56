package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/stemsi/proctorexam/internal/config"
	"github.com/stemsi/proctorexam/internal/logger"
	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/service"
)

// issue-token mints a JWT for local testing. Production tokens come from the
// institution's auth service, which signs with the same secret.
func main() {
	var (
		userID int
		role   string
		expiry time.Duration
	)
	flag.IntVar(&userID, "user", 0, "User ID carried in the token")
	flag.StringVar(&role, "role", string(model.RoleStudent), "Role: student, teacher or admin")
	flag.DurationVar(&expiry, "expiry", 0, "Token lifetime (defaults to JWT_EXPIRY_HOURS)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if userID <= 0 {
		fmt.Println("Error: -user must be a positive ID")
		os.Exit(2)
	}
	r, err := model.ParseRole(role)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		fmt.Print("JWT_SECRET is not set. Enter signing secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		secret = strings.TrimSpace(string(raw))
	}
	if secret == "" {
		fmt.Println("Error: secret is required")
		os.Exit(2)
	}

	if expiry <= 0 {
		expiry = cfg.JWTExpiry
	}

	token, err := service.NewTokenService(secret, expiry).Issue(userID, r, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Println(token)
}
