package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"backtest-core/pkg/auth"
	"backtest-core/pkg/config"
)

// mint_token/main.go
//
// Issues a bearer token for the /api routes when API_JWT_SECRET is set.
//
//	go run ./scripts/mint_token -client dashboard -ttl 720h
func main() {
	client := flag.String("client", "dashboard", "client name embedded in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if cfg.APIJWTSecret == "" {
		fmt.Fprintln(os.Stderr, "API_JWT_SECRET is empty; auth is disabled and no token is needed")
		os.Exit(1)
	}

	tok, err := auth.GenerateToken(*client, cfg.APIJWTSecret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
