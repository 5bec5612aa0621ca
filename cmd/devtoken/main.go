// Command devtoken prints an access token for local testing of the API.
//
//	go run ./cmd/devtoken -user 3 -role customer
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/restaurant-order-engine/internal/utils"
)

func main() {
	_ = godotenv.Load()
	user := flag.Uint64("user", 1, "user id (sub claim)")
	role := flag.String("role", "customer", "role claim: customer, chef, waiter, cashier, manager or admin")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), *user, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	_ = json.NewEncoder(os.Stdout).Encode(tok)
}
