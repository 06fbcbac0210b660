package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/inzira/ticketing-core/internal/utils"
)

func main() {
	bytes := flag.Int("bytes", 32, "secret length in bytes")
	flag.Parse()

	secret, err := utils.GenerateSecret(*bytes)
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Add this to your .env file (must match the identity service's signing key):")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("Keep this secret out of version control.")
}
