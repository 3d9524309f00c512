// Command migrate-secrets replaces plaintext owner passwords left by older
// deployments with bcrypt digests. It is safe to run more than once.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ramallah-time/internal/access"
	"ramallah-time/internal/database"
)

func main() {
	_ = godotenv.Load()

	host := flag.String("host", getEnv("DB_HOST", "localhost"), "database host")
	port := flag.String("port", getEnv("DB_PORT", "5432"), "database port")
	user := flag.String("user", getEnv("DB_USER", "ramallah"), "database user")
	name := flag.String("db", getEnv("DB_NAME", "ramallah_time"), "database name")
	sslmode := flag.String("sslmode", getEnv("DB_SSLMODE", "disable"), "postgres sslmode")
	cost := flag.Int("cost", 10, "bcrypt cost")
	dryRun := flag.Bool("dry-run", false, "report what would change without writing")
	flag.Parse()

	db, err := database.NewDB(*host, *port, *user, os.Getenv("DB_PASSWORD"), *name, *sslmode)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := db.MigrateOwnerSecrets(ctx, access.NewBcryptHasher(*cost), *dryRun)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	verb := "rehashed"
	if *dryRun {
		verb = "would rehash"
	}
	log.Printf("Scanned %d owner secrets: %d already hashed, %s %d, %d failed",
		report.Scanned, report.AlreadyHashed, verb, report.Rehashed, report.Failed)
	if report.Failed > 0 {
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
