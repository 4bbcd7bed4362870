package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"boardflow-api/api"
	"boardflow-api/automation"
	"boardflow-api/notify"
	"boardflow-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(
		resource.NewSchemaless(attribute.String("service.name", "boardflow-api")),
	))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./boardflow.db"
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	sweepInterval := 5 * time.Minute
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid SWEEP_INTERVAL: %v", err)
		}
		sweepInterval = d
	}

	ruleCacheTTL := 5 * time.Minute
	if v := os.Getenv("RULE_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid RULE_CACHE_TTL: %v", err)
		}
		ruleCacheTTL = d
	}
	ruleCache := storage.NewRuleCache(store, rc, ruleCacheTTL)

	var notifier automation.Notifier
	if connStr, queue := os.Getenv("STORAGE_CONNECTION_STRING"), os.Getenv("NOTIFICATIONS_QUEUE"); connStr != "" && queue != "" {
		qn, err := notify.NewQueueNotifier(connStr, queue)
		if err != nil {
			log.Fatalf("notification queue: %v", err)
		}
		notifier = qn
	} else {
		logger.Warn("notification queue not configured; logging notifications instead")
		notifier = &notify.LogNotifier{Logger: logger}
	}

	executor := automation.NewExecutor(store, notifier, logger)
	dispatcher := automation.NewDispatcher(ruleCache, store, executor, logger)

	deduper := automation.NewRedisDeduper(rc, sweepInterval)
	sweeper := automation.NewSweeper(store, dispatcher, deduper, sweepInterval, logger)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.Run(sweepCtx)

	var auth *api.Auth
	if os.Getenv("AUTH_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			log.Fatal("TEST_JWT_SECRET must be set when AUTH_TEST_MODE=1")
		}
		auth = api.NewTestAuth([]byte(secret))
	} else {
		jwtAudience := os.Getenv("AUTH_AUDIENCE")
		domain := os.Getenv("AUTH_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing auth config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, store, ruleCache, dispatcher, auth, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}
