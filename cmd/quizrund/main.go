package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/quizrun/quizrun/internal/api/http"
	"github.com/quizrun/quizrun/internal/auth"
	"github.com/quizrun/quizrun/internal/config"
	"github.com/quizrun/quizrun/internal/db"
	"github.com/quizrun/quizrun/internal/eventlog"
	"github.com/quizrun/quizrun/internal/quiz"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	// --- Quiz snapshot cache ---
	var cache quiz.QuizCache
	switch cfg.CacheDriver {
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		cache = quiz.NewRedisQuizCache(rdb, time.Duration(cfg.CacheTTLSec)*time.Second)
	default:
		cache = quiz.NewMemoryQuizCache()
	}

	store := quiz.NewSQLStore(dbh, cfg.DBDriver, cache)
	events := eventlog.NewRepo(dbh, cfg.SiteID)
	lc := quiz.NewLifecycle(store, quiz.WithEvents(events))

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, dbh, cfg.AdminUser, cfg.AdminPassHash)

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r := api.NewRouter(api.Deps{
		Store:       store,
		Lifecycle:   lc,
		Auth:        authSvc,
		CORSOrigins: origins,
	})

	log.Printf("listening on %s (mode=%s, db=%s, cache=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.CacheDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
