package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ramallah-time/internal/access"
	"ramallah-time/internal/assistant"
	"ramallah-time/internal/config"
	"ramallah-time/internal/database"
	"ramallah-time/internal/events"
	"ramallah-time/internal/filestore"
	"ramallah-time/internal/handlers"
	"ramallah-time/internal/listing"
	"ramallah-time/internal/ratelimit"
	"ramallah-time/internal/search"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	// Load configuration
	configPath := getEnv("CONFIG_PATH", "config/config.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		log.Printf("Loaded configuration from %s", configPath)
	}
	applyEnv(appConfig)
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	if appConfig.Auth.AdminSecret == "" {
		log.Fatalf("ADMIN_SECRET_KEY is not set; refusing to start without an admin secret")
	}

	// Database
	gormDB, err := database.NewGormDB(dbSettings(appConfig))
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", appConfig.Database.Type, err)
	}
	defer gormDB.Close()
	log.Printf("Connected to %s", appConfig.Database.Type)

	if err := gormDB.InitSchema(); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Search index (optional)
	var indexer listing.Indexer
	if host := appConfig.Search.Meilisearch.Host; host != "" {
		searchClient := search.NewSearchClient(host, appConfig.Search.Meilisearch.APIKey, appConfig.Search.Meilisearch.Index)
		if err := searchClient.InitIndex(); err != nil {
			log.Printf("Warning: Failed to initialize search index, using database search: %v", err)
		} else {
			indexer = searchClient
			go reindexAll(gormDB, searchClient)
		}
	} else {
		log.Println("Search: Meilisearch not configured, using database search")
	}

	// Events (optional)
	var publisher listing.Publisher = events.Noop{}
	if url := appConfig.Events.RabbitMQ.URL; url != "" {
		p, err := events.NewPublisher(events.Config{
			URL:          url,
			ExchangeName: appConfig.Events.RabbitMQ.Exchange,
		})
		if err != nil {
			log.Printf("Warning: Events disabled: %v", err)
		} else {
			defer p.Close()
			publisher = p
		}
	}

	// Access control
	hasher := access.NewBcryptHasher(appConfig.Auth.BcryptCost)
	tokenKey := appConfig.Auth.TokenKey
	if tokenKey == "" {
		tokenKey = randomKey()
		log.Println("Warning: OWNER_TOKEN_KEY is not set; owner tokens will not survive a restart")
	}
	resolver := access.NewResolver(
		appConfig.Auth.AdminSecret,
		hasher,
		access.NewTokenIssuer(tokenKey, appConfig.Auth.TokenTTL()),
	)

	// Image storage
	files, err := filestore.NewLocal(appConfig.Storage.UploadDir, appConfig.Storage.URLPrefix)
	if err != nil {
		log.Fatalf("Failed to prepare upload directory: %v", err)
	}
	var processor listing.ImageProcessor
	if appConfig.Storage.MaxImageEdge > 0 {
		processor = filestore.NewProcessor(appConfig.Storage.MaxImageEdge, appConfig.Storage.ImageQuality)
	}

	service := listing.NewService(listing.Config{
		AdminGrantDays:      appConfig.Listing.AdminGrantDays,
		ActivationBlockDays: appConfig.Listing.ActivationBlockDays,
		DefaultLimit:        appConfig.Listing.DefaultLimit,
		MaxLimit:            appConfig.Listing.MaxLimit,
		MaxUploadFiles:      appConfig.Storage.MaxFiles,
		MaxFileBytes:        appConfig.Storage.MaxFileBytes(),
	}, listing.Deps{
		Store:    gormDB,
		Files:    files,
		Images:   processor,
		Index:    indexer,
		Events:   publisher,
		Resolver: resolver,
		Hasher:   hasher,
	})

	guide := assistant.New(assistant.Config{
		APIKey:           appConfig.Assistant.APIKey,
		Model:            appConfig.Assistant.Model,
		Timeout:          appConfig.Assistant.Timeout(),
		FailureThreshold: appConfig.Assistant.FailureThreshold,
		ResetTimeout:     appConfig.Assistant.ResetTimeout(),
	})

	// Initialize rate limiter
	rateLimiter := ratelimit.NewRateLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)
	log.Printf("Rate limiter initialized: %d req/min, %d req/hour (enabled: %v)",
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)

	if appConfig.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	if err := router.SetTrustedProxies(appConfig.Server.TrustedProxies); err != nil {
		log.Fatalf("Invalid trusted proxies: %v", err)
	}

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	if len(appConfig.Server.AllowedOrigins) == 0 || appConfig.Server.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = appConfig.Server.AllowedOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, handlers.AdminTokenHeader, "Authorization")
	router.Use(cors.New(corsConfig))

	// Multipart bodies above this spill to disk.
	router.MaxMultipartMemory = 32 << 20

	handlers.Register(router, handlers.Handlers{
		Places: handlers.NewPlaceHandler(service,
			int64(appConfig.Storage.MaxFiles)*appConfig.Storage.MaxFileBytes()+(1<<20)),
		Admin:     handlers.NewAdminHandler(service),
		Assistant: handlers.NewAssistantHandler(service, guide, appConfig.Assistant.ContextPlaces),
		Health:    handlers.NewHealthHandler(gormDB),
		Limiter:   rateLimiter,
	})
	router.Static(appConfig.Storage.URLPrefix, files.Dir())

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", appConfig.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

// reindexAll mirrors every stored listing into the search index.
func reindexAll(db *database.GormDB, idx *search.SearchClient) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	listings, err := db.ListListings(ctx, listing.Filter{})
	if err != nil {
		log.Printf("Search: reindex skipped, failed to load places: %v", err)
		return
	}
	if err := idx.IndexListings(ctx, listings); err != nil {
		log.Printf("Search: reindex failed: %v", err)
		return
	}
	log.Printf("Search: indexed %d places", len(listings))
}

func dbSettings(cfg *config.Config) database.Settings {
	s := database.Settings{
		Type:   cfg.Database.Type,
		LogSQL: cfg.Logging.LogSQL,
	}
	if s.Type == database.TypeMySQL {
		m := cfg.Database.MySQL
		s.Host = getEnvOrConfig(m.Host, "DB_HOST", "mysql")
		s.Port = getEnvOrConfig(portString(m.Port), "DB_PORT", "3306")
		s.User = getEnvOrConfig(m.User, "DB_USER", "ramallah")
		s.Password = getEnvOrConfig(m.Password, "DB_PASSWORD", "")
		s.Name = getEnvOrConfig(m.Database, "DB_NAME", "ramallah_time")
		return s
	}
	p := cfg.Database.Postgres
	s.Host = getEnvOrConfig(p.Host, "DB_HOST", "db")
	s.Port = getEnvOrConfig(portString(p.Port), "DB_PORT", "5432")
	s.User = getEnvOrConfig(p.User, "DB_USER", "ramallah")
	s.Password = getEnvOrConfig(p.Password, "DB_PASSWORD", "")
	s.Name = getEnvOrConfig(p.Database, "DB_NAME", "ramallah_time")
	s.SSLMode = getEnvOrConfig(p.SSLMode, "DB_SSLMODE", "disable")
	return s
}

// applyEnv overrides secrets and service endpoints from the environment.
func applyEnv(cfg *config.Config) {
	cfg.Server.Port = getEnvOrConfig(cfg.Server.Port, "PORT", "8080")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		cfg.Server.TrustedProxies = strings.Split(proxies, ",")
	}
	cfg.Database.Type = getEnvOrConfig(cfg.Database.Type, "DB_TYPE", database.TypePostgres)
	cfg.Auth.AdminSecret = getEnvOrConfig(cfg.Auth.AdminSecret, "ADMIN_SECRET_KEY", "")
	cfg.Auth.TokenKey = getEnvOrConfig(cfg.Auth.TokenKey, "OWNER_TOKEN_KEY", "")
	cfg.Storage.UploadDir = getEnvOrConfig(cfg.Storage.UploadDir, "UPLOAD_DIR", "uploads/places")
	cfg.Search.Meilisearch.Host = getEnvOrConfig(cfg.Search.Meilisearch.Host, "MEILISEARCH_HOST", "")
	cfg.Search.Meilisearch.APIKey = getEnvOrConfig(cfg.Search.Meilisearch.APIKey, "MEILISEARCH_KEY", "")
	cfg.Events.RabbitMQ.URL = getEnvOrConfig(cfg.Events.RabbitMQ.URL, "RABBITMQ_URL", "")
	cfg.Assistant.APIKey = getEnvOrConfig(cfg.Assistant.APIKey, "OPENAI_API_KEY", "")
}

func portString(port int) string {
	if port <= 0 {
		return ""
	}
	return strconv.Itoa(port)
}

func randomKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate token key: %v", err)
	}
	return hex.EncodeToString(b)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig returns the environment variable if set, then the config value, then the default
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}
