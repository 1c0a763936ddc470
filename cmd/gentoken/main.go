package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"strategyvault/internal/auth"
)

// gentoken mints a development bearer token for a given owner id using the
// configured JWT issuer and secret.
func main() {
	_ = godotenv.Load()

	ownerID := flag.String("owner", "", "owner id to put in the subject claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *ownerID == "" {
		fmt.Fprintln(os.Stderr, "usage: gentoken -owner <owner-id> [-ttl 24h]")
		os.Exit(2)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "strategyvault"
	}

	token, err := auth.NewService(issuer, []byte(secret)).IssueToken(*ownerID, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
