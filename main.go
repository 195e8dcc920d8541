package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"dataflow-api/accounts"
	"dataflow-api/api"
	"dataflow-api/storage"
	"dataflow-api/updater"
)

func main() {
	_ = godotenv.Load()

	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTable := os.Getenv("TASKS_TABLE")
	projectsTable := os.Getenv("PROJECTS_TABLE")
	accountsTable := os.Getenv("ACCOUNTS_TABLE")
	commandQueue := os.Getenv("COMMAND_QUEUE")
	if connStr == "" || tasksTable == "" || projectsTable == "" || accountsTable == "" || commandQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tasksTable, projectsTable, accountsTable, commandQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(redisOptions())

	cacheTTL := 5 * time.Minute
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	cached := storage.NewCache(store, rc, cacheTTL)

	dedupeTTL := 24 * time.Hour
	if v := os.Getenv("DEDUPER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid DEDUPER_TTL: %v", err)
		}
		dedupeTTL = d
	}
	deduper := api.NewRedisDeduper(rc, dedupeTTL)

	tokenSecret := os.Getenv("TOKEN_SECRET")
	var auth *api.Auth
	if tokenSecret != "" {
		auth = api.NewAuth(api.AuthConfig{LocalSecret: []byte(tokenSecret)})
	} else {
		jwksURL := os.Getenv("AUTH_JWKS_URL")
		audience := os.Getenv("AUTH_AUDIENCE")
		issuer := os.Getenv("AUTH_ISSUER")
		if jwksURL == "" {
			log.Fatal("missing auth config: set TOKEN_SECRET or AUTH_JWKS_URL")
		}
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(api.AuthConfig{JWKS: jwks, Audience: audience, Issuer: issuer})
	}

	logger := log.New()

	var mailer accounts.Mailer
	if host := os.Getenv("SMTP_HOST"); host != "" {
		port := 587
		if v := os.Getenv("SMTP_PORT"); v != "" {
			port, err = strconv.Atoi(v)
			if err != nil {
				log.Fatalf("invalid SMTP_PORT: %v", err)
			}
		}
		mailer = accounts.NewSMTPMailer(accounts.SMTPConfig{
			Host:      host,
			Port:      port,
			Username:  os.Getenv("SMTP_USERNAME"),
			Password:  os.Getenv("SMTP_PASSWORD"),
			FromEmail: os.Getenv("SMTP_FROM_EMAIL"),
			FromName:  os.Getenv("SMTP_FROM_NAME"),
			BaseURL:   os.Getenv("APP_BASE_URL"),
		})
	} else {
		logger.Warn("SMTP not configured, account mail disabled")
	}

	accountSecret := tokenSecret
	if accountSecret == "" {
		accountSecret = os.Getenv("ACCOUNT_TOKEN_SECRET")
		if accountSecret == "" {
			log.Fatal("missing TOKEN_SECRET for account sessions")
		}
	}
	accountSvc := accounts.New(cached, mailer, logger, accounts.Config{
		TokenSecret: []byte(accountSecret),
	})

	sender := api.NewSender(cached, deduper, logger, api.SenderConfig{})
	defer sender.Shutdown()

	updateChannel := os.Getenv("UPDATE_CHANNEL")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := updater.New(cached, rc, updateChannel, logger)
	go consumer.Run(ctx)

	stream := api.NewStream(cached, rc, updateChannel, logger)
	go stream.Run(ctx)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, api.Deps{
		Store:    cached,
		Auth:     auth,
		Deduper:  deduper,
		Sender:   sender,
		Accounts: accountSvc,
		Stream:   stream,
		Logger:   logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions parses REDIS_CONNECTION_STRING, accepting either a redis URL
// or the comma-separated host,key=value form used by managed caches.
func redisOptions() *redis.Options {
	conn := os.Getenv("REDIS_CONNECTION_STRING")
	if conn == "" {
		log.Fatal("missing redis config")
	}
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
