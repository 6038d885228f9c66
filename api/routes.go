package api

import (
	"time"

	"github.com/gilby125/flight-offers-harvester/config"
	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/cache"
	"github.com/gilby125/flight-offers-harvester/pkg/health"
	"github.com/gilby125/flight-offers-harvester/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators the HTTP surface needs. Cache and
// Health are optional.
type Dependencies struct {
	Service        *harvest.Service
	Parser         *offers.Parser
	Normalizer     *offers.Normalizer
	Cache          *cache.CacheManager
	Health         *health.HealthChecker
	Auth           config.AuthConfig
	IdempotencyTTL time.Duration
	KeyPrefix      string
}

// NewRouter returns a gin engine with middleware and routes registered.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery())
	RegisterRoutes(router, deps)
	return router
}

// RegisterRoutes registers all API routes
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", healthHandler(deps.Health))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/schema/:mode", schemaHandler(deps.slots()))
		v1.POST("/parse", parseHandler(deps.Parser, deps.Normalizer))

		ingest := []gin.HandlerFunc{middleware.IngestAuth(deps.Auth)}
		if deps.Cache != nil {
			ingest = append(ingest, middleware.Idempotency(deps.Cache, middleware.IdempotencyConfig{
				TTL:       deps.IdempotencyTTL,
				KeyPrefix: deps.KeyPrefix,
			}))
		}
		ingest = append(ingest, ingestHandler(deps.Service))
		v1.POST("/ingest", ingest...)
	}
}

func (d Dependencies) slots() int {
	if d.Parser != nil {
		return d.Parser.Slots()
	}
	return offers.DefaultAttributionSlots
}
