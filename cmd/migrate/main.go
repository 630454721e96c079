package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"sms-scheduler/internal/adapters/db/postgres"
	"sms-scheduler/internal/config"
)

func main() {
	conf, err := config.FromEnv()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	fmt.Println("🔗 Connecting to database...")

	repo, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}
	defer repo.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println("🔄 Running migrations...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	fmt.Println("✅ Tables ready: messages, recipients")
	fmt.Println("🎉 Database ready!")
}
