package playbackmodule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *managerEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := newManagerEnv(t)
	router := gin.New()
	registerRoutes(router, NewAPIHandler(env.manager))
	return router, env
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doLicenseRequest(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestLicenseEndpoint(t *testing.T) {
	router, env := newTestRouter(t)

	tokens, err := env.manager.IssueTokens(context.Background(), "film-1", "user-1", "device-1", "FR")
	require.NoError(t, err)
	widevineToken := tokens.Tokens[SystemWidevine.Name]

	t.Run("valid token returns the license payload", func(t *testing.T) {
		recorder := doLicenseRequest(router, "/api/drm/license/widevine/film-1", widevineToken)
		require.Equal(t, http.StatusOK, recorder.Code)

		var resp apiResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		require.True(t, resp.Success)

		var license struct {
			FilmID      string `json:"film_id"`
			UserID      string `json:"user_id"`
			System      string `json:"system"`
			LicenseData string `json:"license_data"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &license))
		assert.Equal(t, "film-1", license.FilmID)
		assert.Equal(t, "user-1", license.UserID)
		assert.Equal(t, SystemWidevine.Name, license.System)
		assert.Equal(t, "MOCK_WIDEVINE_LICENSE_DATA", license.LicenseData)
	})

	t.Run("token for another system is refused", func(t *testing.T) {
		recorder := doLicenseRequest(router, "/api/drm/license/fairplay/film-1", widevineToken)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("token for another film is refused", func(t *testing.T) {
		recorder := doLicenseRequest(router, "/api/drm/license/widevine/film-2", widevineToken)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("unknown protection system is not found", func(t *testing.T) {
		recorder := doLicenseRequest(router, "/api/drm/license/primetime/film-1", widevineToken)
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		recorder := doLicenseRequest(router, "/api/drm/license/widevine/film-1", "")
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}
