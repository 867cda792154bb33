package rightsmodule

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thewans/streamgate/internal/database"
	"github.com/thewans/streamgate/internal/logger"
)

// APIHandler handles HTTP requests for the rights module
type APIHandler struct {
	store    *WindowStore
	resolver *Resolver
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(store *WindowStore, resolver *Resolver) *APIHandler {
	return &APIHandler{
		store:    store,
		resolver: resolver,
	}
}

// HandleResolve checks film availability for the calling user
func (h *APIHandler) HandleResolve(c *gin.Context) {
	filmID := c.Param("filmId")
	userID := c.GetHeader("X-User-ID")
	territory := c.GetHeader("X-User-Territory")
	if territory == "" {
		territory = TerritoryGlobal
	}

	availability, err := h.resolver.Resolve(c.Request.Context(), filmID, userID, territory, database.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(availability))
}

// HandleResolveBulk checks availability for many films at once
func (h *APIHandler) HandleResolveBulk(c *gin.Context) {
	var request struct {
		FilmIDs []string `json:"film_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", err.Error()))
		return
	}

	userID := c.GetHeader("X-User-ID")
	territory := c.GetHeader("X-User-Territory")
	if territory == "" {
		territory = TerritoryGlobal
	}

	results, err := h.resolver.ResolveBulk(c.Request.Context(), request.FilmIDs, userID, territory, database.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(results))
}

// HandleUpcomingWindows returns the next future windows for a film
func (h *APIHandler) HandleUpcomingWindows(c *gin.Context) {
	windows, err := h.store.Upcoming(c.Request.Context(), c.Param("filmId"), database.Now(), 5)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(windows))
}

// HandleCreateWindow creates a licensing window
func (h *APIHandler) HandleCreateWindow(c *gin.Context) {
	var input CreateWindowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", err.Error()))
		return
	}

	window, err := h.store.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(window))
}

// HandleGetWindow returns a window by ID
func (h *APIHandler) HandleGetWindow(c *gin.Context) {
	window, err := h.store.Get(c.Request.Context(), c.Param("windowId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(window))
}

// HandleListWindows returns all windows for a film
func (h *APIHandler) HandleListWindows(c *gin.Context) {
	windows, err := h.store.ListForFilm(c.Request.Context(), c.Param("filmId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(windows))
}

// HandleActiveWindowsByType returns currently-running windows of one type
func (h *APIHandler) HandleActiveWindowsByType(c *gin.Context) {
	windows, err := h.store.ActiveForType(c.Request.Context(), c.Param("windowType"), database.Now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(windows))
}

// HandleUpdateWindow applies a partial update to a window
func (h *APIHandler) HandleUpdateWindow(c *gin.Context) {
	var input UpdateWindowInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", err.Error()))
		return
	}

	window, err := h.store.Update(c.Request.Context(), c.Param("windowId"), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(window))
}

// HandleDeleteWindow removes a window
func (h *APIHandler) HandleDeleteWindow(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("windowId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(gin.H{"message": "window deleted"}))
}

// HandleToggleWindow flips a window's active flag
func (h *APIHandler) HandleToggleWindow(c *gin.Context) {
	window, err := h.store.Toggle(c.Request.Context(), c.Param("windowId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(window))
}

func successResponse(data interface{}) gin.H {
	return gin.H{"success": true, "data": data}
}

func errorResponse(code, message string) gin.H {
	return gin.H{"success": false, "error": gin.H{"code": code, "message": message}}
}

// respondError maps domain errors to HTTP statuses and stable error codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse("VALIDATION_ERROR", err.Error()))
	case errors.Is(err, ErrFilmNotFound):
		c.JSON(http.StatusNotFound, errorResponse("NOT_FOUND", "Film not found"))
	case errors.Is(err, ErrWindowNotFound):
		c.JSON(http.StatusNotFound, errorResponse("NOT_FOUND", "Window not found"))
	case errors.Is(err, ErrWindowConflict):
		c.JSON(http.StatusConflict, errorResponse("WINDOW_CONFLICT", err.Error()))
	case errors.Is(err, ErrWindowReferenced):
		c.JSON(http.StatusConflict, errorResponse("WINDOW_REFERENCED",
			"Window is referenced by a purchase; create a new window instead"))
	default:
		logger.Error("rights request failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, errorResponse("STORE_ERROR", "Temporary store failure"))
	}
}
