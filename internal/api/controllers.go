package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"backtest-core/internal/engine"
	"backtest-core/internal/indicators"
	"backtest-core/internal/live"
	"backtest-core/internal/market"
	"backtest-core/internal/position"
	"backtest-core/pkg/db"
)

// errorStatus maps the error taxonomy to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, indicators.ErrInvalidIndicatorConfig):
		return http.StatusBadRequest, "INVALID_CONFIG"
	case errors.Is(err, market.ErrInvalidTimeframe):
		return http.StatusBadRequest, "INVALID_TIMEFRAME"
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, live.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, indicators.ErrInsufficientData), errors.Is(err, market.ErrNoData):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_DATA"
	case errors.Is(err, position.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidCandle),
		errors.Is(err, market.ErrUnordered):
		return http.StatusBadGateway, "INVALID_PRICE"
	case errors.Is(err, market.ErrUpstream):
		return http.StatusBadGateway, "PROVIDER_ERROR"
	case errors.Is(err, engine.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", c.GetString(requestIDKey)).Str("code", code).Msg("request failed")
	}
	c.JSON(status, gin.H{
		"success": false,
		"code":    code,
		"error":   err.Error(),
	})
}

func badPayload(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"code":    "INVALID_PAYLOAD",
		"error":   "invalid request payload: " + err.Error(),
	})
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

// backtestResponse flattens the result next to the success flag.
type backtestResponse struct {
	Success bool `json:"success"`
	*engine.BacktestResult
}

type pollResponse struct {
	Success bool `json:"success"`
	*live.PollResult
}

func (s *Server) listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "presets": s.Engine.Presets()})
}

// runBacktest handles POST /api/backtest.
func (s *Server) runBacktest(c *gin.Context) {
	var req engine.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	res, err := s.Engine.RunBacktest(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, backtestResponse{Success: true, BacktestResult: res})
}

func (s *Server) listBacktests(c *gin.Context) {
	runs, err := s.Engine.ListBacktests(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []db.BacktestRun{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "runs": runs})
}

func (s *Server) getBacktest(c *gin.Context) {
	run, err := s.Engine.GetBacktest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "run": run})
}

// startLive handles POST /api/livetest/start.
func (s *Server) startLive(c *gin.Context) {
	var req engine.LiveStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	ack, err := s.Engine.StartLive(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Live test started for " + ack.Key,
		"session": ack,
	})
}

// pollLive handles GET /api/livetest/:symbol/poll.
func (s *Server) pollLive(c *gin.Context) {
	res, err := s.Engine.PollLive(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pollResponse{Success: true, PollResult: res})
}

func (s *Server) listLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": s.Engine.ListLive(c.Request.Context())})
}

func (s *Server) listLiveTrades(c *gin.Context) {
	trades, err := s.Engine.LiveTrades(c.Request.Context(), c.Query("symbol"), queryLimit(c, 100))
	if err != nil {
		respondError(c, err)
		return
	}
	if trades == nil {
		trades = []db.LiveTrade{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "trades": trades})
}
