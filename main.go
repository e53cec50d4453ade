package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/skillquest/server/agent"
	apirest "github.com/skillquest/server/api/rest"
	"github.com/skillquest/server/api/sse"
	"github.com/skillquest/server/audit"
	"github.com/skillquest/server/cache"
	"github.com/skillquest/server/config"
	dbadapter "github.com/skillquest/server/db"
	mw "github.com/skillquest/server/middleware"
	"github.com/skillquest/server/model"
	"github.com/skillquest/server/quest"
	"github.com/skillquest/server/store/gormstore"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Agents ----
	var schedules quest.ScheduleGenerator
	var homework quest.HomeworkGenerator
	var grader quest.Grader
	switch cfg.Agent.Provider {
	case "stub":
		stub := agent.NewStub()
		schedules, homework, grader = stub, stub, stub
		logger.Warn("using stub agent; generated content is deterministic")
	default:
		gem, err := agent.NewGemini(context.Background(), cfg.Agent.Model, cfg.Agent.Timeout, logger)
		if err != nil {
			log.Fatalf("agent: %v", err)
		}
		schedules, homework, grader = gem, gem, gem
		logger.Info("Gemini agent initialized", zap.String("model", cfg.Agent.Model))
	}

	// ---- Quest lifecycle ----
	st := gormstore.New(db)
	questSvc := quest.NewService(st, st, quest.Config{
		CourseWeeks:         cfg.Quest.CourseWeeks,
		DuplicateWeekPolicy: quest.DuplicateWeekPolicy(cfg.Quest.DuplicateWeekPolicy),
		RetryAttempts:       cfg.Quest.RetryAttempts,
		RetryBaseDelay:      cfg.Quest.RetryBaseDelay,
	}, logger)
	generator := quest.NewGenerator(schedules, homework, questSvc, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	questH := apirest.NewQuestHandler(db, questSvc, generator, grader, c,
		&apirest.QuestEvents{PubSub: pubsub}, auditSvc, cfg.Cache.CollectionTTL, logger)
	adminH := apirest.NewAdminHandler(db, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		questG := api.Group("")
		questG.Use(mw.Auth(cfg.Security, c))
		questG.POST("/quests/generate", questH.Generate)
		questG.POST("/quests/regenerate", questH.Regenerate)
		questG.GET("/periods/:pid/quests", questH.ListByPeriod)
		questG.GET("/quests/:id", questH.Detail)
		questG.PUT("/quests/:id/status", questH.UpdateStatus)
		questG.POST("/quests/:id/submit", questH.Submit)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminIPs))
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/accounts", adminH.ListAccounts)
		adminG.POST("/accounts/:id/disable", adminH.DisableAccount)
		adminG.GET("/audit", adminH.ListAuditLogs)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, db, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
