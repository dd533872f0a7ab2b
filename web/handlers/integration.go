package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/pulsedash/dashboard/models"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 300 // seconds
)

// CredentialService is the credential store surface the HTTP layer consumes.
type CredentialService interface {
	Store(ctx context.Context, p models.Platform, material *models.TokenMaterial, account *models.AccountInfo) error
	StoreAPIKey(ctx context.Context, p models.Platform, key string, account *models.AccountInfo) error
	Remove(ctx context.Context, p models.Platform) error
	ListConnected(ctx context.Context) ([]models.Platform, error)
}

// CacheInvalidator drops cached aggregates after a credential change.
type CacheInvalidator interface {
	InvalidateCache(clientID, dependency string) int
}

type IntegrationHandler struct {
	creds       CredentialService
	invalidator CacheInvalidator
	configs     map[models.Platform]*oauth2.Config
	redirectTo  string
	logger      *zap.Logger
}

func NewIntegrationHandler(
	creds CredentialService,
	invalidator CacheInvalidator,
	configs map[models.Platform]*oauth2.Config,
	redirectTo string,
	logger *zap.Logger,
) *IntegrationHandler {
	if redirectTo == "" {
		redirectTo = "/integrations"
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &IntegrationHandler{
		creds:       creds,
		invalidator: invalidator,
		configs:     configs,
		redirectTo:  redirectTo,
		logger:      logger,
	}
}

// Register mounts the integration routes on the given router group.
func (h *IntegrationHandler) Register(r gin.IRouter) {
	r.GET("/integrations", h.HandleStatus)
	r.GET("/integrations/:platform/connect", h.HandleConnect)
	r.GET("/integrations/:platform/callback", h.HandleCallback)
	r.POST("/integrations/:platform/apikey", h.HandleStoreAPIKey)
	r.DELETE("/integrations/:platform", h.HandleDisconnect)
}

// HandleStatus reports the connection state of every known platform.
func (h *IntegrationHandler) HandleStatus(c *gin.Context) {
	connected, err := h.creds.ListConnected(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list connected platforms", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list integrations"})

		return
	}

	connectedSet := make(map[models.Platform]bool, len(connected))
	for _, p := range connected {
		connectedSet[p] = true
	}

	status := make(map[string]gin.H, len(models.AllPlatforms()))
	for _, p := range models.AllPlatforms() {
		_, hasOAuth := h.configs[p]
		status[p.String()] = gin.H{
			"connected":        connectedSet[p],
			"oauth_configured": hasOAuth,
		}
	}

	c.JSON(http.StatusOK, status)
}

// HandleConnect starts the OAuth authorization flow for a platform. A
// single-use state token in a short-lived cookie guards the callback
// against CSRF.
func (h *IntegrationHandler) HandleConnect(c *gin.Context) {
	p, cfg, ok := h.platformConfig(c)
	if !ok {
		return
	}

	state := uuid.New().String()

	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, state, stateCookieTTL, "/", "", secure, true)

	h.logger.Info("starting oauth flow", zap.String("platform", p.String()))

	// AccessTypeOffline is required to get a refresh token.
	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// HandleCallback finishes the OAuth flow: verifies state, exchanges the
// code, persists the encrypted token, and drops the cached dashboards that
// depended on the old credential.
func (h *IntegrationHandler) HandleCallback(c *gin.Context) {
	p, cfg, ok := h.platformConfig(c)
	if !ok {
		return
	}

	state, err := c.Cookie(stateCookieName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state cookie not found"})

		return
	}

	secure := c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, "", -1, "/", "", secure, true)

	if c.Query("state") != state {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state parameter"})

		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code not found"})

		return
	}

	token, err := cfg.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("failed to exchange authorization code",
			zap.Error(err),
			zap.String("platform", p.String()))

		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to exchange authorization code"})

		return
	}

	material := &models.TokenMaterial{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}

	if !token.Expiry.IsZero() {
		if ttl := time.Until(token.Expiry); ttl > 0 {
			material.ExpiresIn = int64(ttl.Seconds())
		}
	}

	if err := h.creds.Store(c.Request.Context(), p, material, nil); err != nil {
		h.logger.Error("failed to store credential",
			zap.Error(err),
			zap.String("platform", p.String()))

		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credential"})

		return
	}

	// A new credential can change what every client sees on this platform,
	// so cached aggregates are dropped wholesale.
	h.invalidator.InvalidateCache("", "")

	c.Redirect(http.StatusTemporaryRedirect, h.redirectTo+"?connected="+p.String())
}

type apiKeyRequest struct {
	APIKey      string `json:"api_key" binding:"required,min=8"`
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
}

// HandleStoreAPIKey connects a platform that authenticates with a static
// API key instead of OAuth.
func (h *IntegrationHandler) HandleStoreAPIKey(c *gin.Context) {
	p, ok := h.platform(c)
	if !ok {
		return
	}

	var req apiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	var account *models.AccountInfo
	if req.AccountID != "" || req.AccountName != "" {
		account = &models.AccountInfo{ID: req.AccountID, Name: req.AccountName}
	}

	if err := h.creds.StoreAPIKey(c.Request.Context(), p, req.APIKey, account); err != nil {
		h.logger.Error("failed to store api key",
			zap.Error(err),
			zap.String("platform", p.String()))

		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store api key"})

		return
	}

	h.invalidator.InvalidateCache("", "")

	c.JSON(http.StatusOK, gin.H{"connected": true})
}

// HandleDisconnect removes a platform's credential and drops the cached
// dashboards built with it.
func (h *IntegrationHandler) HandleDisconnect(c *gin.Context) {
	p, ok := h.platform(c)
	if !ok {
		return
	}

	if err := h.creds.Remove(c.Request.Context(), p); err != nil {
		h.logger.Error("failed to disconnect platform",
			zap.Error(err),
			zap.String("platform", p.String()))

		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to disconnect"})

		return
	}

	h.invalidator.InvalidateCache("", "")

	c.JSON(http.StatusOK, gin.H{"connected": false})
}

func (h *IntegrationHandler) platform(c *gin.Context) (models.Platform, bool) {
	p, err := models.ParsePlatform(c.Param("platform"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform"})

		return "", false
	}

	return p, true
}

func (h *IntegrationHandler) platformConfig(c *gin.Context) (models.Platform, *oauth2.Config, bool) {
	p, ok := h.platform(c)
	if !ok {
		return "", nil, false
	}

	cfg, ok := h.configs[p]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform has no oauth configuration"})

		return "", nil, false
	}

	return p, cfg, true
}
