package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pulsedash/dashboard/models"
)

type fakeCredentialService struct {
	stored    map[models.Platform]*models.TokenMaterial
	apiKeys   map[models.Platform]string
	removed   []models.Platform
	connected []models.Platform
}

func newFakeCredentialService() *fakeCredentialService {
	return &fakeCredentialService{
		stored:  make(map[models.Platform]*models.TokenMaterial),
		apiKeys: make(map[models.Platform]string),
	}
}

func (s *fakeCredentialService) Store(_ context.Context, p models.Platform, material *models.TokenMaterial, _ *models.AccountInfo) error {
	s.stored[p] = material

	return nil
}

func (s *fakeCredentialService) StoreAPIKey(_ context.Context, p models.Platform, key string, _ *models.AccountInfo) error {
	s.apiKeys[p] = key

	return nil
}

func (s *fakeCredentialService) Remove(_ context.Context, p models.Platform) error {
	s.removed = append(s.removed, p)

	return nil
}

func (s *fakeCredentialService) ListConnected(context.Context) ([]models.Platform, error) {
	return s.connected, nil
}

type fakeCacheInvalidator struct {
	calls int
}

func (i *fakeCacheInvalidator) InvalidateCache(_, _ string) int {
	i.calls++

	return 0
}

func integrationRouter(creds CredentialService, invalidator CacheInvalidator, configs map[models.Platform]*oauth2.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	NewIntegrationHandler(creds, invalidator, configs, "", nil).Register(engine.Group("/api/v1"))

	return engine
}

func TestHandleStatus(t *testing.T) {
	creds := newFakeCredentialService()
	creds.connected = []models.Platform{models.PlatformFacebook}

	router := integrationRouter(creds, &fakeCacheInvalidator{}, map[models.Platform]*oauth2.Config{
		models.PlatformFacebook: {},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/integrations", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"facebook":{"connected":true,"oauth_configured":true}`)
	assert.Contains(t, w.Body.String(), `"gohighlevel":{"connected":false,"oauth_configured":false}`)
}

func TestHandleConnectSetsStateCookie(t *testing.T) {
	router := integrationRouter(newFakeCredentialService(), &fakeCacheInvalidator{}, map[models.Platform]*oauth2.Config{
		models.PlatformFacebook: {
			ClientID: "client-id",
			Endpoint: oauth2.Endpoint{AuthURL: "https://auth.example.com/authorize"},
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/integrations/facebook/connect", nil))

	require.Equal(t, http.StatusTemporaryRedirect, w.Code)

	location := w.Header().Get("Location")
	assert.Contains(t, location, "https://auth.example.com/authorize")
	assert.Contains(t, location, "access_type=offline")

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, stateCookieName, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Contains(t, location, "state="+cookies[0].Value)
}

func TestHandleConnectUnknownPlatform(t *testing.T) {
	router := integrationRouter(newFakeCredentialService(), &fakeCacheInvalidator{}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/integrations/myspace/connect", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCallback(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token":"issued-access-token",
			"refresh_token":"issued-refresh-token",
			"token_type":"Bearer",
			"expires_in":3600
		}`))
	}))
	defer tokenSrv.Close()

	creds := newFakeCredentialService()
	invalidator := &fakeCacheInvalidator{}

	router := integrationRouter(creds, invalidator, map[models.Platform]*oauth2.Config{
		models.PlatformFacebook: {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Endpoint:     oauth2.Endpoint{TokenURL: tokenSrv.URL},
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/facebook/callback?state=state-1&code=auth-code", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "state-1"})
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "connected=facebook")

	material := creds.stored[models.PlatformFacebook]
	require.NotNil(t, material)
	assert.Equal(t, "issued-access-token", material.AccessToken)
	assert.Equal(t, "issued-refresh-token", material.RefreshToken)
	assert.InDelta(t, 3600, material.ExpiresIn, 5)

	assert.Equal(t, 1, invalidator.calls, "a new credential drops cached dashboards")
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	router := integrationRouter(newFakeCredentialService(), &fakeCacheInvalidator{}, map[models.Platform]*oauth2.Config{
		models.PlatformFacebook: {},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/integrations/facebook/callback?state=evil&code=auth-code", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "state-1"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCallbackMissingCookie(t *testing.T) {
	router := integrationRouter(newFakeCredentialService(), &fakeCacheInvalidator{}, map[models.Platform]*oauth2.Config{
		models.PlatformFacebook: {},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/integrations/facebook/callback?state=s&code=c", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStoreAPIKey(t *testing.T) {
	creds := newFakeCredentialService()
	invalidator := &fakeCacheInvalidator{}
	router := integrationRouter(creds, invalidator, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/integrations/gohighlevel/apikey",
		strings.NewReader(`{"api_key":"ghl-api-key-123","account_id":"loc-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ghl-api-key-123", creds.apiKeys[models.PlatformGoHighLevel])
	assert.Equal(t, 1, invalidator.calls)
}

func TestHandleStoreAPIKeyTooShort(t *testing.T) {
	router := integrationRouter(newFakeCredentialService(), &fakeCacheInvalidator{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/integrations/gohighlevel/apikey",
		strings.NewReader(`{"api_key":"short"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDisconnect(t *testing.T) {
	creds := newFakeCredentialService()
	invalidator := &fakeCacheInvalidator{}
	router := integrationRouter(creds, invalidator, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/integrations/facebook", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.Platform{models.PlatformFacebook}, creds.removed)
	assert.Equal(t, 1, invalidator.calls)
}
