package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"spese-report/internal/cache"
	"spese-report/internal/log"
	"spese-report/internal/period"
)

var granularityTitles = map[period.Granularity]string{
	period.Week:    "Weekly",
	period.Month:   "Monthly",
	period.Quarter: "Quarterly",
	period.Yearly:  "Yearly",
}

// handleLegacyReport serves /api/reports/<g>?date=. The date is required.
func (s *Server) handleLegacyReport(g period.Granularity) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Query("date"))
		if token == "" {
			s.respondError(c, errBadRequest.withError(errors.New("date parameter is required")))
			return
		}
		s.serveReport(c, g, token)
	}
}

// handleReportData serves /api/reports/<g>/data/:value.
func (s *Server) handleReportData(g period.Granularity) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.serveReport(c, g, c.Param("value"))
	}
}

func (s *Server) serveReport(c *gin.Context, g period.Granularity, token string) {
	ctx := c.Request.Context()
	uid := userID(c)

	res, err := s.reports.Resolver().Resolve(token, g)
	if err != nil {
		s.respondError(c, err)
		return
	}

	key := cache.ReportKey(uid, string(g), period.Value(g, res.Current))
	message := granularityTitles[g] + " report generated successfully"

	if body, ok := s.cachedReport(ctx, key); ok {
		NewResponse().RawData(body).Message(message).Header("X-Cache", "HIT").Write(c)
		return
	}

	rep, err := s.reports.GenerateFor(ctx, uid, res)
	if err != nil {
		s.respondError(c, err)
		return
	}

	body, err := json.Marshal(rep)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.storeReport(ctx, key, body)
	NewResponse().RawData(body).Message(message).Header("X-Cache", "MISS").Write(c)
}

// cachedReport treats cache failures as misses.
func (s *Server) cachedReport(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	body, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "report cache read failed", log.FieldCacheKey, key, log.FieldError, err)
		return nil, false
	}
	return body, ok
}

func (s *Server) storeReport(ctx context.Context, key string, body []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, body); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "report cache write failed", log.FieldCacheKey, key, log.FieldError, err)
	}
}

// handleAvailable lists the periods of g with logged entries, newest first.
func (s *Server) handleAvailable(g period.Granularity) gin.HandlerFunc {
	return func(c *gin.Context) {
		periods, err := s.reports.Available(c.Request.Context(), userID(c), g)
		if err != nil {
			s.respondError(c, err)
			return
		}
		NewResponse().
			Data(periods).
			Message(fmt.Sprintf("Found %d %s periods", len(periods), g)).
			Write(c)
	}
}
