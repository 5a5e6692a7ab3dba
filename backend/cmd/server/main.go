package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"resonance/backend/internal/connection"
	"resonance/backend/internal/graph"
	"resonance/backend/internal/matching"
	"resonance/backend/internal/rationale"
	"resonance/backend/internal/values"
	"resonance/backend/pkg/config"
	apperrors "resonance/backend/pkg/errors"
	"resonance/backend/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting matching engine server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Load the value dimension catalog
	catalog, err := values.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatal("Failed to load dimension catalog", zap.Error(err))
	}
	log.Info("Dimension catalog loaded", zap.Int("dimensions", catalog.Len()))

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	// Verify Neo4j connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity",
			zap.Error(apperrors.NewGraphConnectionFailed(cfg.Neo4jURI, err)))
	}

	// Initialize dependencies
	repo := graph.NewRepository(driver)
	if err := repo.EnsureConstraints(ctx); err != nil {
		log.Fatal("Failed to ensure graph constraints", zap.Error(err))
	}
	if err := repo.SyncCatalog(ctx, catalog.Entries()); err != nil {
		log.Fatal("Failed to sync dimension catalog", zap.Error(err))
	}

	scorer := matching.NewScorer(matching.WithThresholds(cfg.SharedThreshold, cfg.TensionThreshold))
	ranker := matching.NewRanker(scorer, matching.RankerConfig{
		HeapThreshold: cfg.RankHeapThreshold,
		ScanBudget:    cfg.RankScanBudget,
		Concurrency:   cfg.RankConcurrency,
	})
	cache := matching.NewCache()

	bus := connection.NewBus()
	manager := connection.NewManager(graph.NewRequestStore(repo), bus)

	// Downstream collaborators (messaging, community suggestions) subscribe to
	// lifecycle events; the manager never calls them directly. This stand-in
	// subscriber just records acceptances.
	go func() {
		for event := range bus.Subscribe(64) {
			if event.Kind == connection.EventAccepted {
				log.Info("Pair now eligible for downstream features",
					zap.String("sender_id", event.Request.SenderID),
					zap.String("recipient_id", event.Request.RecipientID),
				)
			}
		}
	}()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Dimension catalog
		api.GET("/catalog", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"dimensions": catalog.Entries()})
		})

		// Upsert a value profile. Profiles are owned exclusively by their
		// user; the acting user id is asserted by the auth collaborator.
		api.PUT("/profiles/:id", func(c *gin.Context) {
			userID := c.Param("id")
			ctx := c.Request.Context()

			if actor := actingUser(c); actor != userID {
				c.JSON(http.StatusForbidden, gin.H{"error": "Profiles can only be edited by their owner"})
				return
			}

			var req struct {
				Dimensions []values.Dimension `json:"dimensions" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			profile := values.NewProfile(userID)
			for _, d := range req.Dimensions {
				profile.SetDimension(d)
			}
			if err := profile.Validate(catalog); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			// Version continues from the stored profile
			if existing, err := repo.FetchProfile(ctx, userID); err == nil {
				profile.Version = existing.Version + 1
			}

			if err := repo.UpsertProfile(ctx, profile); err != nil {
				log.Error("Failed to upsert profile", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save profile"})
				return
			}
			cache.Invalidate(userID)

			c.JSON(http.StatusOK, profile)
		})

		// Fetch a value profile
		api.GET("/profiles/:id", func(c *gin.Context) {
			userID := c.Param("id")
			ctx := c.Request.Context()

			profile, err := repo.FetchProfile(ctx, userID)
			if err != nil {
				if _, ok := err.(graph.ErrProfileNotFound); ok {
					c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
					return
				}
				log.Error("Failed to fetch profile", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
				return
			}

			c.JSON(http.StatusOK, profile)
		})

		// Upsert matching preferences
		api.PUT("/profiles/:id/preferences", func(c *gin.Context) {
			userID := c.Param("id")
			ctx := c.Request.Context()

			if actor := actingUser(c); actor != userID {
				c.JSON(http.StatusForbidden, gin.H{"error": "Preferences can only be edited by their owner"})
				return
			}

			var req struct {
				ConnectionTypesSought    []values.ConnectionType `json:"connection_types_sought"`
				DimensionWeightOverrides map[string]float64      `json:"dimension_weight_overrides"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			prefs := values.NewPreferences(userID)
			prefs.ConnectionTypesSought = req.ConnectionTypesSought
			if req.DimensionWeightOverrides != nil {
				prefs.DimensionWeightOverrides = req.DimensionWeightOverrides
			}
			if err := prefs.Validate(catalog); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			if existing, err := repo.FetchPreferences(ctx, userID); err == nil {
				prefs.Version = existing.Version + 1
			}

			if err := repo.UpsertPreferences(ctx, prefs); err != nil {
				log.Error("Failed to upsert preferences", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
				return
			}
			cache.Invalidate(userID)

			c.JSON(http.StatusOK, prefs)
		})

		// Ranked matches for a user
		api.GET("/match/:id", func(c *gin.Context) {
			userID := c.Param("id")
			ctx := c.Request.Context()

			k, err := strconv.Atoi(c.DefaultQuery("k", "10"))
			if err != nil || k < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "k must be a non-negative integer"})
				return
			}

			profile, err := repo.FetchProfile(ctx, userID)
			if err != nil {
				if _, ok := err.(graph.ErrProfileNotFound); ok {
					c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
					return
				}
				log.Error("Failed to fetch profile", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
				return
			}

			prefs, err := repo.FetchPreferences(ctx, userID)
			if err != nil {
				log.Error("Failed to fetch preferences", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch preferences"})
				return
			}

			// Fetch one past the budget so the ranker can flag partial results
			pool, err := repo.FetchCandidatePool(ctx, userID, cfg.RankScanBudget+1)
			if err != nil {
				log.Error("Failed to fetch candidate pool", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch candidates"})
				return
			}

			ranking, err := ranker.Rank(ctx, profile, prefs, pool, k)
			if err != nil {
				log.Error("Ranking pass failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rank candidates"})
				return
			}

			c.JSON(http.StatusOK, ranking)
		})

		// Symmetric pair score
		api.GET("/match/:id/score/:other", func(c *gin.Context) {
			score, _, _, err := scorePair(c, repo, cache, scorer, c.Param("id"), c.Param("other"))
			if err != nil {
				respondScoreError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"comparable": true, "score": score})
		})

		// Rationale graph for a pair
		api.GET("/match/:id/explain/:other", func(c *gin.Context) {
			score, profileA, profileB, err := scorePair(c, repo, cache, scorer, c.Param("id"), c.Param("other"))
			if err != nil {
				respondScoreError(c, log, err)
				return
			}

			explanation, err := rationale.Build(score, profileA, profileB)
			if err != nil {
				log.Error("Failed to build rationale graph", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build explanation"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"score": score, "graph": explanation})
		})

		// Create a connection request
		api.POST("/connections", func(c *gin.Context) {
			ctx := c.Request.Context()

			sender := actingUser(c)
			if sender == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
				return
			}

			var req struct {
				RecipientID string `json:"recipient_id" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			request, err := manager.Create(ctx, sender, req.RecipientID)
			if err != nil {
				respondConnectionError(c, log, err)
				return
			}

			c.JSON(http.StatusCreated, request)
		})

		// Resolve a connection request
		api.POST("/connections/:id/accept", connectionTransition(log, manager.Accept))
		api.POST("/connections/:id/decline", connectionTransition(log, manager.Decline))
		api.POST("/connections/:id/withdraw", connectionTransition(log, manager.Withdraw))

		// Fetch a connection request
		api.GET("/connections/:id", func(c *gin.Context) {
			request, err := manager.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondConnectionError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, request)
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// actingUser returns the user id asserted by the auth collaborator. Nothing
// beyond the id itself is trusted.
func actingUser(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// scorePair fetches both profiles and returns the (possibly cached)
// symmetric pair score
func scorePair(c *gin.Context, repo *graph.Repository, cache *matching.Cache, scorer *matching.Scorer, userA, userB string) (*matching.PairScore, *values.Profile, *values.Profile, error) {
	ctx := c.Request.Context()

	profileA, err := repo.FetchProfile(ctx, userA)
	if err != nil {
		return nil, nil, nil, err
	}
	profileB, err := repo.FetchProfile(ctx, userB)
	if err != nil {
		return nil, nil, nil, err
	}

	// The symmetric fact is ungoverned by preferences, so the cache key uses
	// preferences version zero
	if score, ok := cache.Get(profileA, profileB, 0); ok {
		return score, profileA, profileB, nil
	}

	score, err := scorer.Score(profileA, profileB)
	if err != nil {
		return nil, nil, nil, err
	}
	cache.Put(profileA, profileB, 0, score)

	return score, profileA, profileB, nil
}

// respondScoreError maps scoring failures onto responses. Data insufficiency
// is a normal outcome, never logged as a fault.
func respondScoreError(c *gin.Context, log *zap.Logger, err error) {
	switch err.(type) {
	case matching.ErrNoSharedValues:
		c.JSON(http.StatusOK, gin.H{"comparable": false, "reason": "insufficient data to compare"})
	case graph.ErrProfileNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
	default:
		log.Error("Failed to score pair", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to score pair"})
	}
}

// connectionTransition adapts a manager transition into a handler
func connectionTransition(log *zap.Logger, transition func(ctx context.Context, actorID, requestID string) (*connection.Request, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actingUser(c)
		if actor == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
			return
		}

		request, err := transition(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondConnectionError(c, log, err)
			return
		}

		c.JSON(http.StatusOK, request)
	}
}

// respondConnectionError maps lifecycle failures onto specific responses so
// callers can render precise guidance rather than a generic failure
func respondConnectionError(c *gin.Context, log *zap.Logger, err error) {
	switch e := err.(type) {
	case connection.ErrDuplicateRequest:
		// Symmetric intent: surface the existing reverse request so the
		// caller can offer accepting it instead
		c.JSON(http.StatusConflict, gin.H{
			"error":    e.Error(),
			"existing": e.Existing,
			"reverse":  e.Reverse,
		})
	case connection.ErrNotAuthorized:
		c.JSON(http.StatusForbidden, gin.H{"error": e.Error()})
	case connection.ErrInvalidState:
		c.JSON(http.StatusConflict, gin.H{"error": e.Error(), "status": e.Status})
	case connection.ErrRequestNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Connection request not found"})
	default:
		log.Error("Connection request operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process connection request"})
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
