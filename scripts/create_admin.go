//go:build ignore

// Script to generate the bcrypt hash for ADMIN_PASSWORD_HASH.
// Run with: go run scripts/create_admin.go -password yourpassword
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	password := flag.String("password", "", "Admin password to hash")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost factor")
	flag.Parse()

	if *password == "" {
		fmt.Println("Usage: go run scripts/create_admin.go -password <password> [-cost N]")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), *cost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
}
