package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/buildinfo"
	"github.com/gilby125/flight-offers-harvester/pkg/health"
	"github.com/gilby125/flight-offers-harvester/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ParseRequest is the body of POST /api/v1/parse.
type ParseRequest struct {
	Card    string               `json:"card" binding:"required"`
	Context offers.SearchContext `json:"context"`
}

// ParseResponse returns the normalised record, or the reason it was
// rejected.
type ParseResponse struct {
	Offer *offers.FlightOffer `json:"offer,omitempty"`
	Error string              `json:"error,omitempty"`
}

// ingestHandler accepts one envelope and appends its new records.
func ingestHandler(svc *harvest.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion is not configured"})
			return
		}

		env, err := harvest.DecodeEnvelope(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := svc.Ingest(c.Request.Context(), env)
		switch {
		case err == nil:
			if res.RunID != "" {
				c.Header("X-Run-ID", res.RunID)
			}
			c.JSON(http.StatusOK, res)
		case errors.Is(err, harvest.ErrInvalidEnvelope), errors.Is(err, harvest.ErrModeMismatch):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			logger.WithField("mode", string(env.Mode)).Error(err, "Ingest failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist batch", "run_id": res.RunID})
		}
	}
}

// parseHandler parses a single card without persisting anything.
func parseHandler(p *offers.Parser, n *offers.Normalizer) gin.HandlerFunc {
	if n == nil && p != nil {
		n = offers.NewNormalizer(p.Slots())
	}
	return func(c *gin.Context) {
		if p == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "card parsing is not configured"})
			return
		}

		var req ParseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		frag, err := p.Parse(req.Card)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, ParseResponse{Error: err.Error()})
			return
		}
		offer, err := n.FromFragment(req.Context, frag)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, ParseResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, ParseResponse{Offer: &offer})
	}
}

// schemaHandler lists the output columns of a mode.
func schemaHandler(slots int) gin.HandlerFunc {
	return func(c *gin.Context) {
		mode, err := offers.ParseMode(c.Param("mode"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"mode":    mode,
			"columns": offers.SchemaFor(mode, slots).Header(),
		})
	}
}

func healthHandler(h *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusUp, "version": buildinfo.Version})
			return
		}
		report := h.CheckHealth(c.Request.Context())
		status := http.StatusOK
		if report.Status != health.StatusUp {
			status = http.StatusServiceUnavailable
		}
		if strings.EqualFold(c.Query("verbose"), "false") {
			c.JSON(status, gin.H{"status": report.Status, "version": report.Version})
			return
		}
		c.JSON(status, report)
	}
}
