package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/rugguard/rugguard/analysis"
	"github.com/rugguard/rugguard/cachestore"
	"github.com/rugguard/rugguard/gateway"
	"github.com/rugguard/rugguard/monitor"
	"github.com/rugguard/rugguard/report"
	"github.com/rugguard/rugguard/thread"
	"github.com/rugguard/rugguard/trust"
	"github.com/rugguard/rugguard/twitter"
)

type Config struct {
	Logger         *slog.Logger
	BearerToken    string
	APIHost        string
	BotHandle      string
	TriggerPhrase  string
	TrustedListURL string
	RedisURL       string
	SearchInterval time.Duration
	MaxThreadDepth int
}

type Server struct {
	logger  *slog.Logger
	monitor *monitor.Monitor
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if strings.TrimSpace(config.BearerToken) == "" {
		return nil, fmt.Errorf("bearer token is required")
	}
	if strings.TrimSpace(config.BotHandle) == "" {
		return nil, fmt.Errorf("bot handle is required")
	}
	if strings.TrimSpace(config.TriggerPhrase) == "" {
		return nil, fmt.Errorf("trigger phrase is required")
	}
	botHandle := trust.NormalizeHandle(config.BotHandle)

	var rdb *redis.Client
	var cache cachestore.CacheStore
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		if err := rdb.Ping(context.TODO()).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		cache, err = cachestore.NewRedisCacheStore(config.RedisURL, 5*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		logger.Info("using redis-backed cache", "url", config.RedisURL)
	} else {
		cache = cachestore.NewMemCacheStore()
		logger.Info("redis not configured, using in-memory cache")
	}

	client := &twitter.Client{
		Host:        config.APIHost,
		BearerToken: config.BearerToken,
	}
	gw := gateway.NewGateway(client, cache, logger)
	registry := trust.NewRegistry(config.TrustedListURL, cache, logger)
	analyzer := analysis.NewAnalyzer(gw, logger)
	resolver := thread.NewResolver(gw, logger)
	reports := report.NewGenerator(logger)

	mon := monitor.NewMonitor(monitor.Config{
		BotHandle:      botHandle,
		TriggerPhrase:  config.TriggerPhrase,
		MaxThreadDepth: config.MaxThreadDepth,
		SearchInterval: config.SearchInterval,
	}, gw, resolver, analyzer, registry, reports, cache, rdb, logger)

	return &Server{
		logger:  logger,
		monitor: mon,
	}, nil
}

func (s *Server) Run(ctx context.Context) error {
	return s.monitor.Run(ctx)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}
