package rightsmodule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/thewans/streamgate/internal/database"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	log := hclog.NewNullLogger()
	handler := NewAPIHandler(NewWindowStore(db, log), NewResolver(db, log))

	router := gin.New()
	registerRoutes(router, handler)
	return router, db
}

func doJSON(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func TestWindowEndpoints(t *testing.T) {
	router, db := newTestRouter(t)
	seedFilm(t, db, "film-1", database.FilmStatusPublished)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var windowID string

	t.Run("create window", func(t *testing.T) {
		recorder := doJSON(router, http.MethodPost, "/api/windows", gin.H{
			"film_id":     "film-1",
			"window_type": WindowTypeSVOD,
			"territories": []string{"FR"},
			"start_date":  start,
			"end_date":    start.AddDate(0, 3, 0),
		}, nil)

		require.Equal(t, http.StatusCreated, recorder.Code)
		resp := decodeResponse(t, recorder)
		require.True(t, resp.Success)

		var window database.Window
		require.NoError(t, json.Unmarshal(resp.Data, &window))
		windowID = window.ID
		require.NotEmpty(t, windowID)
	})

	t.Run("create rejects malformed payload", func(t *testing.T) {
		recorder := doJSON(router, http.MethodPost, "/api/windows", gin.H{
			"film_id": "film-1",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Equal(t, "VALIDATION_ERROR", decodeResponse(t, recorder).Error.Code)
	})

	t.Run("create maps overlap to conflict", func(t *testing.T) {
		recorder := doJSON(router, http.MethodPost, "/api/windows", gin.H{
			"film_id":     "film-1",
			"window_type": WindowTypeSVOD,
			"territories": []string{"FR"},
			"start_date":  start.AddDate(0, 1, 0),
		}, nil)
		assert.Equal(t, http.StatusConflict, recorder.Code)
		assert.Equal(t, "WINDOW_CONFLICT", decodeResponse(t, recorder).Error.Code)
	})

	t.Run("get window", func(t *testing.T) {
		recorder := doJSON(router, http.MethodGet, "/api/windows/"+windowID, nil, nil)
		assert.Equal(t, http.StatusOK, recorder.Code)

		recorder = doJSON(router, http.MethodGet, "/api/windows/no-such-id", nil, nil)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
		assert.Equal(t, "NOT_FOUND", decodeResponse(t, recorder).Error.Code)
	})

	t.Run("patch window", func(t *testing.T) {
		recorder := doJSON(router, http.MethodPatch, "/api/windows/"+windowID, gin.H{
			"price":    799,
			"currency": "EUR",
		}, nil)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("toggle and delete", func(t *testing.T) {
		recorder := doJSON(router, http.MethodPatch, fmt.Sprintf("/api/windows/%s/toggle", windowID), nil, nil)
		assert.Equal(t, http.StatusOK, recorder.Code)

		recorder = doJSON(router, http.MethodDelete, "/api/windows/"+windowID, nil, nil)
		assert.Equal(t, http.StatusOK, recorder.Code)

		recorder = doJSON(router, http.MethodDelete, "/api/windows/"+windowID, nil, nil)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestAvailabilityEndpoints(t *testing.T) {
	router, db := newTestRouter(t)
	now := database.Now()

	seedFilm(t, db, "film-1", database.FilmStatusPublished)
	seedWindow(t, db, database.Window{
		ID: "w-avod", FilmID: "film-1", WindowType: WindowTypeAVOD,
		StartDate: now.AddDate(0, -1, 0),
	})

	t.Run("anonymous availability", func(t *testing.T) {
		recorder := doJSON(router, http.MethodGet, "/api/availability/film-1", nil, nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var availability Availability
		require.NoError(t, json.Unmarshal(decodeResponse(t, recorder).Data, &availability))
		assert.True(t, availability.Available)
		assert.False(t, availability.HasAccess)
	})

	t.Run("authenticated user with territory header", func(t *testing.T) {
		recorder := doJSON(router, http.MethodGet, "/api/availability/film-1", nil, map[string]string{
			"X-User-ID":        "user-1",
			"X-User-Territory": "FR",
		})
		require.Equal(t, http.StatusOK, recorder.Code)

		var availability Availability
		require.NoError(t, json.Unmarshal(decodeResponse(t, recorder).Data, &availability))
		assert.Equal(t, AccessTypeAVOD, availability.AccessType)
	})

	t.Run("unknown film", func(t *testing.T) {
		recorder := doJSON(router, http.MethodGet, "/api/availability/no-such-film", nil, nil)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("bulk availability", func(t *testing.T) {
		recorder := doJSON(router, http.MethodPost, "/api/availability/bulk", gin.H{
			"film_ids": []string{"film-1", "missing"},
		}, nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		var results map[string]Availability
		require.NoError(t, json.Unmarshal(decodeResponse(t, recorder).Data, &results))
		assert.Len(t, results, 1)
	})

	t.Run("bulk rejects missing film ids", func(t *testing.T) {
		recorder := doJSON(router, http.MethodPost, "/api/availability/bulk", gin.H{}, nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}
