// Command server runs a demonstration service exposing the request-governance
// layer behind an HTTP API: a chat endpoint guarded by rate limiting, abuse
// detection, bot-configuration lookup, and plan enforcement, plus
// administrative endpoints for abuse state and cache invalidation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexabot/guardrail/internal/abuse"
	"github.com/nexabot/guardrail/internal/botcache"
	"github.com/nexabot/guardrail/internal/botstore"
	"github.com/nexabot/guardrail/internal/config"
	"github.com/nexabot/guardrail/internal/middleware"
	"github.com/nexabot/guardrail/internal/monitoring"
	"github.com/nexabot/guardrail/internal/plan"
	"github.com/nexabot/guardrail/internal/ratelimit"
	"github.com/nexabot/guardrail/internal/store"
	"github.com/nexabot/guardrail/pkg/constants"
	"github.com/nexabot/guardrail/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewZapLogger(cfg.Log.Level)
	ctx := context.Background()

	kv := store.NewRedisStore(&cfg.Redis, log)
	defer kv.Close()

	limiter := ratelimit.New(kv, log)
	defer limiter.Close()

	detector := abuse.New(kv, log)
	defer detector.Close()

	metrics := monitoring.NewMetrics()

	var (
		cache    *botcache.Cache
		enforcer *plan.Enforcer
	)
	if cfg.Database.DSN != "" {
		backing, err := botstore.Open(cfg.Database.DSN, log)
		if err != nil {
			log.Fatal(ctx, "failed to connect to database", err)
		}
		cache = botcache.New(kv, backing, log)
		enforcer = plan.NewEnforcer(backing, log)
	} else {
		log.Warn(ctx, "database DSN not configured, bot config and plan routes disabled")
	}

	router := buildRouter(limiter, detector, cache, enforcer, metrics, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info(ctx, "server listening", logger.Fields{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(ctx, "server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "graceful shutdown failed", err)
	}
}

type chatRequest struct {
	BotID   string `json:"botId" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func buildRouter(
	limiter *ratelimit.Limiter,
	detector *abuse.Detector,
	cache *botcache.Cache,
	enforcer *plan.Enforcer,
	metrics *monitoring.Metrics,
	log logger.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(middleware.RequestID())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.RateLimit(limiter, constants.ProfileAPIGeneral, metrics, log))

	chat := api.Group("/chat")
	chat.Use(middleware.RateLimit(limiter, constants.ProfileChatMessage, metrics, log))
	if enforcer != nil {
		chat.Use(middleware.EnforcePlanLimit(enforcer, plan.LimitMessages, metrics, log))
	}
	chat.POST("/message", func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		identifier := "ip:" + middleware.ClientIdentifier(c)
		res, err := detector.CheckMessage(c.Request.Context(), identifier, req.Message)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if middleware.DenyAbusive(c, res, metrics, log) {
			return
		}

		var bot *botcache.BotConfig
		if cache != nil {
			bot, _ = cache.GetBot(c.Request.Context(), req.BotID, c.GetHeader("X-User-ID"))
			if bot == nil {
				metrics.RecordBotCacheLookup("miss")
				c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
				return
			}
			metrics.RecordBotCacheLookup("hit")
		}

		// Chat completion itself is owned by the platform; this service
		// only governs admission.
		c.JSON(http.StatusOK, gin.H{
			"accepted": true,
			"score":    res.Score,
			"bot":      bot,
		})
	})

	admin := api.Group("/admin")
	admin.Use(middleware.RateLimit(limiter, constants.ProfileAPIStrict, metrics, log))
	admin.GET("/abuse/:identifier", func(c *gin.Context) {
		status, err := detector.GetStatus(c.Request.Context(), c.Param("identifier"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
			return
		}
		if status == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no abuse state"})
			return
		}
		c.JSON(http.StatusOK, status)
	})
	admin.DELETE("/abuse/:identifier", func(c *gin.Context) {
		if err := detector.Reset(c.Request.Context(), c.Param("identifier")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
			return
		}
		c.Status(http.StatusNoContent)
	})
	if cache != nil {
		admin.DELETE("/bots/:botId/cache", func(c *gin.Context) {
			if err := cache.InvalidateBot(c.Request.Context(), c.Param("botId")); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "invalidation failed"})
				return
			}
			c.Status(http.StatusNoContent)
		})
		admin.GET("/cache/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, cache.GetStats())
		})
	}

	return router
}
