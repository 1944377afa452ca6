// Package main mints HS256 service tokens for calling the BookMate API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/bookmate/bookmate/internal/middleware"
)

func main() {
	tenantID := flag.String("tenant", "", "tenant id to embed (required)")
	subject := flag.String("sub", "operator", "token subject, recorded as the audit actor")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	secret := flag.String("secret", "", "signing secret (defaults to BOOKMATE_SERVICE_SECRET)")
	flag.Parse()

	_ = godotenv.Load()
	if *secret == "" {
		*secret = os.Getenv("BOOKMATE_SERVICE_SECRET")
	}
	if *tenantID == "" || *secret == "" {
		flag.Usage()
		os.Exit(1)
	}

	token, err := middleware.IssueToken(*secret, *tenantID, *subject, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
