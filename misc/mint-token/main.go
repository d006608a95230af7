package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"foodtruck-preorder/internal/auth"
)

func main() {
	role := flag.String("role", "customer", "customer | vendor | operator")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	// The subject is the customer or vendor id the token acts as.
	if flag.NArg() < 1 {
		log.Fatal("Usage: go run ./misc/mint-token [-role vendor] [-ttl 1h] <subject>")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = os.Getenv("AUTH_JWT_SECRET")
	}
	if secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	token, err := auth.NewToken(secret, flag.Arg(0), *role, *ttl, time.Now())
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	// Print the token so it can be pasted into an Authorization header.
	fmt.Println(token)
}
