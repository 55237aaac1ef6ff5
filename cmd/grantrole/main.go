package main

import (
	"context"
	"flag"
	"os"
	"time"

	"norvia-broker/internal/auth"
	"norvia-broker/internal/config"
	"norvia-broker/internal/db"
	"norvia-broker/internal/logger"
)

// grantrole promotes an existing user, typically to admin.
func main() {
	email := flag.String("email", "", "email of the user to promote")
	role := flag.String("role", auth.RoleAdmin, "role to grant")
	flag.Parse()

	cfg, err := config.Load()
	log := logger.New(cfg.LogLevel, "pretty")
	if err != nil {
		log.Fatal("config", err)
	}
	if *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", err)
	}
	defer pool.Close()

	svc := auth.NewService(pool, nil, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	if err := svc.GrantRole(ctx, *email, *role); err != nil {
		log.Fatal("grant role", err)
	}
	log.Infof("granted %s to %s", *role, *email)
}
