package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/sudo-init-do/servicehub/internal/auth"
	"github.com/sudo-init-do/servicehub/internal/config"
)

// issue_token prints a bearer token attesting the given principal.
// Usage:
//
//	go run ./cmd/adminutil/issue_token -user buyer-1 [-role admin] [-ttl 24h]
func main() {
	user := flag.String("user", "", "Principal the token is issued for")
	role := flag.String("role", "", "Optional role claim (admin)")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to TOKEN_TTL)")
	flag.Parse()

	if *user == "" {
		log.Fatalf("usage: go run ./cmd/adminutil/issue_token -user <principal>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lifetime := cfg.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewIssuer(cfg.JWTSecret, lifetime).Issue(*user, *role)
	if err != nil {
		log.Fatalf("token generation failed: %v", err)
	}
	fmt.Println(token)
}
