// Package credentials implements the encrypted credential store for
// third-party platform integrations. Secrets are sealed before they reach
// the persistence sink and unsealed on the way out; legacy plaintext
// records are accepted on read but never written back. Tokens nearing
// expiry are refreshed reactively through a single write path shared with
// the background refresh daemon.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pulsedash/dashboard/models"
	"github.com/pulsedash/dashboard/pkg/encryption"
)

var (
	// ErrValidation wraps malformed token material handed to Store.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence wraps failures of the underlying sink.
	ErrPersistence = errors.New("persistence failed")
)

const (
	// DefaultRefreshThreshold is how close to expiry a token may get
	// before GetAccessToken refreshes it instead of serving it.
	DefaultRefreshThreshold = 5 * time.Minute

	// defaultTokenLifetime applies when a platform's token response
	// omits an explicit lifetime.
	defaultTokenLifetime = time.Hour
)

// RefreshFunc exchanges a refresh token for fresh token material via the
// platform's OAuth token endpoint.
type RefreshFunc func(ctx context.Context, p models.Platform, refreshToken string) (*models.TokenMaterial, error)

// Store is safe for concurrent use; record writes are last-writer-wins,
// which is acceptable because refreshes are idempotent with respect to
// producing a currently valid token.
type Store struct {
	repo             models.CredentialRepository
	cipher           *encryption.Cipher
	refresh          RefreshFunc
	validate         *validator.Validate
	logger           *zap.Logger
	now              func() time.Time
	refreshThreshold time.Duration
}

type Option func(*Store)

// WithRefreshFunc wires the reactive refresh path. Without it, tokens
// nearing expiry are reported as not connected rather than refreshed.
func WithRefreshFunc(fn RefreshFunc) Option {
	return func(s *Store) {
		s.refresh = fn
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithRefreshThreshold(d time.Duration) Option {
	return func(s *Store) {
		s.refreshThreshold = d
	}
}

func New(repo models.CredentialRepository, cipher *encryption.Cipher, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		repo:             repo,
		cipher:           cipher,
		validate:         validator.New(),
		logger:           logger,
		now:              time.Now,
		refreshThreshold: DefaultRefreshThreshold,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Store validates and encrypts freshly issued token material and persists
// it, marking the platform connected. The refresh token is replaced only
// when the authorization server issued a new one; an absent lifetime
// defaults to one hour.
func (s *Store) Store(ctx context.Context, p models.Platform, material *models.TokenMaterial, info *models.AccountInfo) error {
	if material == nil {
		return fmt.Errorf("%w: missing token material", ErrValidation)
	}

	if err := s.validate.Struct(material); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	encAccess, err := s.cipher.Encrypt(material.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	cred, err := s.loadOrInit(ctx, p)
	if err != nil {
		return err
	}

	cred.AccessToken = encAccess

	if material.RefreshToken != "" {
		encRefresh, err := s.cipher.Encrypt(material.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}

		cred.RefreshToken = encRefresh
	}

	lifetime := defaultTokenLifetime
	if material.ExpiresIn > 0 {
		lifetime = time.Duration(material.ExpiresIn) * time.Second
	}

	now := s.now()

	cred.Connected = true
	cred.Expiry = now.Add(lifetime)
	cred.TokenType = material.TokenType
	cred.Scope = material.Scope
	cred.UpdatedAt = now

	if info != nil {
		cred.AccountID = info.ID
		cred.AccountName = info.Name
	}

	if err := s.repo.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.logger.Info("stored credential",
		zap.String("platform", p.String()),
		zap.Time("expiry", cred.Expiry))

	return nil
}

// StoreAPIKey persists an encrypted API key for platforms that do not use
// OAuth. API keys do not expire.
func (s *Store) StoreAPIKey(ctx context.Context, p models.Platform, apiKey string, info *models.AccountInfo) error {
	if len(apiKey) < 8 {
		return fmt.Errorf("%w: api key too short", ErrValidation)
	}

	encKey, err := s.cipher.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}

	cred, err := s.loadOrInit(ctx, p)
	if err != nil {
		return err
	}

	cred.APIKey = encKey
	cred.Connected = true
	cred.UpdatedAt = s.now()

	if info != nil {
		cred.AccountID = info.ID
		cred.AccountName = info.Name
	}

	if err := s.repo.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return nil
}

// GetAccessToken returns a currently usable access token for the platform.
// The flow is an explicit two-step machine with a hard refresh cap of one:
// load and decrypt, then refresh once if the token is within the expiry
// threshold or fails to decrypt. A token known to be stale is never
// served; callers get models.ErrNotConnected instead.
func (s *Store) GetAccessToken(ctx context.Context, p models.Platform) (string, error) {
	cred, err := s.repo.Get(ctx, p)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrNotConnected
		}

		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if !cred.Connected {
		return "", models.ErrNotConnected
	}

	if cred.AccessToken == "" {
		// API-key platforms authenticate every call with the key itself.
		if cred.APIKey != "" {
			return s.unseal(cred.APIKey), nil
		}

		return "", models.ErrNotConnected
	}

	// Step 1: decrypt. Failure means either a corrupted secret or a
	// legacy plaintext record from before encryption was mandatory.
	token, decErr := s.cipher.Decrypt(cred.AccessToken)
	if decErr != nil {
		token = cred.AccessToken
	}

	expiring := s.expiring(cred)

	if decErr == nil && !expiring {
		return token, nil
	}

	// Step 2: refresh, at most once. Both the corrupted-secret and the
	// nearing-expiry cases self-heal through re-authentication.
	if fresh, ok := s.refreshOnce(ctx, cred); ok {
		return fresh, nil
	}

	if decErr != nil && !expiring {
		// Legacy plaintext record that is still valid: serve it. It is
		// rewritten encrypted on the next refresh or reconnect.
		return token, nil
	}

	s.logger.Warn("token stale and refresh unavailable",
		zap.String("platform", p.String()),
		zap.Time("expiry", cred.Expiry))

	return "", models.ErrNotConnected
}

// Refresh forces a refresh for the platform regardless of expiry,
// funneling through the same write path as reactive refreshes. Used by
// the background daemon.
func (s *Store) Refresh(ctx context.Context, p models.Platform) error {
	cred, err := s.repo.Get(ctx, p)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotConnected
		}

		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if !cred.Connected || cred.RefreshToken == "" {
		return models.ErrNotConnected
	}

	if _, ok := s.refreshOnce(ctx, cred); !ok {
		return fmt.Errorf("failed to refresh %s token", p)
	}

	return nil
}

// Remove soft-deletes the platform's record: disconnected with all secret
// material cleared. Removing an absent platform is a no-op.
func (s *Store) Remove(ctx context.Context, p models.Platform) error {
	cred, err := s.repo.Get(ctx, p)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}

		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	cred.Connected = false
	cred.AccessToken = ""
	cred.RefreshToken = ""
	cred.APIKey = ""
	cred.Scope = ""
	cred.UpdatedAt = s.now()

	if err := s.repo.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.logger.Info("removed credential", zap.String("platform", p.String()))

	return nil
}

// IsConnected applies the canonical connectivity predicate: a non-expired
// access token or a present API key. The stored flag alone is not
// sufficient, since tokens can outlive the flag's last update.
func (s *Store) IsConnected(ctx context.Context, p models.Platform) bool {
	cred, err := s.repo.Get(ctx, p)
	if err != nil {
		return false
	}

	return s.usable(cred)
}

// ListConnected returns every platform that passes the connectivity
// predicate.
func (s *Store) ListConnected(ctx context.Context) ([]models.Platform, error) {
	creds, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	platforms := make([]models.Platform, 0, len(creds))

	for _, cred := range creds {
		if s.usable(cred) {
			platforms = append(platforms, cred.Platform)
		}
	}

	return platforms, nil
}

// Expiry reports the stored token expiry, used by the refresh daemon to
// decide which platforms need a proactive refresh.
func (s *Store) Expiry(ctx context.Context, p models.Platform) (time.Time, error) {
	cred, err := s.repo.Get(ctx, p)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return time.Time{}, models.ErrNotConnected
		}

		return time.Time{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if !cred.Connected || cred.AccessToken == "" {
		return time.Time{}, models.ErrNotConnected
	}

	return cred.Expiry, nil
}

func (s *Store) usable(cred *models.IntegrationCredential) bool {
	if cred.APIKey != "" {
		return true
	}

	return cred.AccessToken != "" && !cred.TokenExpired(s.now())
}

func (s *Store) expiring(cred *models.IntegrationCredential) bool {
	if cred.Expiry.IsZero() {
		return false
	}

	return cred.Expiry.Sub(s.now()) <= s.refreshThreshold
}

// refreshOnce runs a single refresh attempt for the record and persists
// the result through the Store write path. It reports whether a fresh
// token is available.
func (s *Store) refreshOnce(ctx context.Context, cred *models.IntegrationCredential) (string, bool) {
	if s.refresh == nil || cred.RefreshToken == "" {
		return "", false
	}

	refreshToken := s.unseal(cred.RefreshToken)

	material, err := s.refresh(ctx, cred.Platform, refreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed",
			zap.String("platform", cred.Platform.String()),
			zap.Error(err))

		return "", false
	}

	if err := s.Store(ctx, cred.Platform, material, nil); err != nil {
		s.logger.Error("failed to persist refreshed token",
			zap.String("platform", cred.Platform.String()),
			zap.Error(err))

		return "", false
	}

	return material.AccessToken, true
}

// unseal decrypts a stored secret, falling back to the raw value for
// legacy plaintext records.
func (s *Store) unseal(value string) string {
	plain, err := s.cipher.Decrypt(value)
	if err != nil {
		return value
	}

	return plain
}

func (s *Store) loadOrInit(ctx context.Context, p models.Platform) (*models.IntegrationCredential, error) {
	cred, err := s.repo.Get(ctx, p)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			now := s.now()

			return &models.IntegrationCredential{Platform: p, CreatedAt: now}, nil
		}

		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return cred, nil
}
