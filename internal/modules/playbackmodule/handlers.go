package playbackmodule

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thewans/streamgate/internal/logger"
	"github.com/thewans/streamgate/internal/modules/rightsmodule"
)

// APIHandler handles HTTP requests for the playback module
type APIHandler struct {
	manager *Manager
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(manager *Manager) *APIHandler {
	return &APIHandler{manager: manager}
}

// HandleStartSession admits a new playback session
func (h *APIHandler) HandleStartSession(c *gin.Context) {
	var request struct {
		FilmID   string `json:"film_id" binding:"required"`
		DeviceID string `json:"device_id" binding:"required"`
		Quality  string `json:"quality"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", err.Error()))
		return
	}

	result, err := h.manager.Start(c.Request.Context(), StartInput{
		UserID:    c.GetHeader("X-User-ID"),
		FilmID:    request.FilmID,
		DeviceID:  request.DeviceID,
		Quality:   request.Quality,
		Territory: c.GetHeader("X-User-Territory"),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(result))
}

// HandleHeartbeat refreshes a session and records progress
func (h *APIHandler) HandleHeartbeat(c *gin.Context) {
	var request struct {
		PositionSeconds float64 `json:"position_seconds"`
		BandwidthKbps   int64   `json:"bandwidth_kbps"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", err.Error()))
		return
	}

	result, err := h.manager.Heartbeat(c.Request.Context(),
		c.Param("sessionId"), request.PositionSeconds, request.BandwidthKbps)
	if err != nil {
		respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

// HandleStopSession ends a session and releases its concurrency slot
func (h *APIHandler) HandleStopSession(c *gin.Context) {
	var request struct {
		PositionSeconds float64 `json:"position_seconds"`
		Completed       bool    `json:"completed"`
	}
	// Stop with an empty body is valid; position and completed fall back to
	// their zero values, so the final history write records position zero.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", err.Error()))
			return
		}
	}

	result, err := h.manager.Stop(c.Request.Context(),
		c.Param("sessionId"), request.PositionSeconds, request.Completed)
	if err != nil {
		respondSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

// HandleActiveSessions lists a user's live sessions
func (h *APIHandler) HandleActiveSessions(c *gin.Context) {
	sessions, err := h.manager.ActiveSessions(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	}))
}

// HandleIssueTokens mints stream tokens for an entitled user
func (h *APIHandler) HandleIssueTokens(c *gin.Context) {
	tokens, err := h.manager.IssueTokens(c.Request.Context(),
		c.Param("filmId"),
		c.GetHeader("X-User-ID"),
		c.GetHeader("X-Device-ID"),
		c.GetHeader("X-User-Territory"))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(tokens))
}

// HandleLicenseRequest validates a stream token on behalf of a license
// server. The token arrives as a bearer credential; the film claim must
// match the requested film.
func (h *APIHandler) HandleLicenseRequest(c *gin.Context) {
	system, ok := SystemByName(c.Param("system"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse("NOT_FOUND", "Unknown protection system"))
		return
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		c.JSON(http.StatusUnauthorized, errorResponse("TOKEN_MISSING", "Stream token required"))
		return
	}

	claims, err := h.manager.ValidateToken(token, c.Param("filmId"))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	if claims.System != system.Name {
		c.JSON(http.StatusForbidden, errorResponse("TOKEN_FORBIDDEN", "Token issued for a different protection system"))
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{
		"film_id":      claims.FilmID,
		"user_id":      claims.UserID,
		"device_id":    claims.DeviceID,
		"system":       claims.System,
		"expires_at":   claims.ExpiresAt.Time,
		"license_data": system.LicenseData(),
	}))
}

func successResponse(data interface{}) gin.H {
	return gin.H{"success": true, "data": data}
}

func errorResponse(code, message string) gin.H {
	return gin.H{"success": false, "error": gin.H{"code": code, "message": message}}
}

// respondSessionError maps domain errors to HTTP statuses and stable error
// codes.
func respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, rightsmodule.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", err.Error()))
	case errors.Is(err, rightsmodule.ErrFilmNotFound):
		c.JSON(http.StatusNotFound, errorResponse("NOT_FOUND", "Film not found"))
	case errors.Is(err, ErrAccessDenied):
		c.JSON(http.StatusForbidden, errorResponse("ACCESS_DENIED", "Film is not available to this user"))
	case errors.Is(err, ErrConcurrentStreamLimit):
		c.JSON(http.StatusTooManyRequests, errorResponse("CONCURRENT_STREAMS_EXCEEDED",
			"Concurrent stream limit reached; stop another session first"))
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, errorResponse("SESSION_NOT_FOUND", "Session not found"))
	case errors.Is(err, ErrSessionExpired):
		c.JSON(http.StatusGone, errorResponse("SESSION_EXPIRED", "Session has expired; start a new one"))
	case errors.Is(err, ErrTokenUnauthorized):
		c.JSON(http.StatusUnauthorized, errorResponse("TOKEN_INVALID", "Stream token is invalid or expired"))
	case errors.Is(err, ErrTokenForbidden):
		c.JSON(http.StatusForbidden, errorResponse("TOKEN_FORBIDDEN", "Token was issued for a different film"))
	default:
		logger.Error("playback request failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse("SESSION_ERROR", "Temporary session store failure"))
	}
}
