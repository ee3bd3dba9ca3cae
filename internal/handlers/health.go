package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"parchment/internal/response"
)

type healthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	Environment string            `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	res := healthResponse{
		Status:      "ok",
		Checks:      make(map[string]string, len(names)),
		Environment: h.cfg.Environment,
	}
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.log.Error().Err(err).Str("check", name).Msg("health check failed")
			res.Checks[name] = "error"
			res.Status = "degraded"
			continue
		}
		res.Checks[name] = "ok"
	}

	if res.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, response.Envelope{
			Success:    false,
			StatusCode: http.StatusServiceUnavailable,
			Message:    "service degraded",
			Data:       res,
		})
		return
	}
	response.Success(c, http.StatusOK, "service healthy", res)
}
