// cmd/adduser/main.go
// Creates or updates a writer in the database. Readers and the MQTT bridge
// authenticate as one of these users.
//
// Usage:
//
//	go run ./cmd/adduser -username reader1 -password testing
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/padraicbc/tracker/auth"
	"github.com/padraicbc/tracker/config"
	bundb "github.com/padraicbc/tracker/db"
	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store"
)

func main() {
	username := flag.String("username", "", "username (required)")
	password := flag.String("password", "", "plain-text password (required)")
	flag.Parse()

	hash, err := auth.HashPassword(*username, *password)
	if err != nil {
		log.Fatal("hash password: ", err)
	}

	ctx := context.Background()
	cfg := config.Load()
	db := bundb.Setup(cfg)
	defer db.Close()
	if err := bundb.CreateTables(ctx, db); err != nil {
		log.Fatal("create tables: ", err)
	}

	if err := store.New(db).UpsertUser(ctx, &models.User{Username: strings.TrimSpace(*username), Password: hash}); err != nil {
		log.Fatal("save user: ", err)
	}

	fmt.Printf("user %q saved\n", *username)
}
