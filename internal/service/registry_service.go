package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
	"github.com/campushub/lms-sync-api/internal/provider"
	"github.com/campushub/lms-sync-api/internal/repository"
	appErrors "github.com/campushub/lms-sync-api/pkg/errors"
)

type connectionRepo interface {
	Create(ctx context.Context, conn *models.Connection) error
	FindByID(ctx context.Context, id string) (*models.Connection, error)
	List(ctx context.Context, institutionID string) ([]models.Connection, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// AdapterFactory builds an adapter for a provider configuration.
type AdapterFactory func(cfg models.ProviderConfig, log *zap.Logger) (provider.Adapter, error)

// RegisterConnectionRequest is the registration payload.
type RegisterConnectionRequest struct {
	InstitutionID  string                `json:"institution_id" validate:"required"`
	ProviderType   models.ProviderType   `json:"provider_type" validate:"required"`
	BaseURL        string                `json:"base_url" validate:"required,url"`
	CredentialType models.CredentialType `json:"credential_type" validate:"required"`
	Credentials    models.Credentials    `json:"credentials"`
	TimeoutSeconds int                   `json:"timeout_seconds" validate:"omitempty,min=1,max=300"`
	RetryAttempts  int                   `json:"retry_attempts" validate:"omitempty,min=0,max=5"`
}

// RegistryService holds the configured connections and their live adapter
// instances. Registration validates credentials against the provider before
// anything is persisted.
type RegistryService struct {
	conns     connectionRepo
	factory   AdapterFactory
	cache     *ResultCache
	validator *validator.Validate
	logger    *zap.Logger

	mu       sync.RWMutex
	adapters map[string]provider.Adapter

	defaultTimeout time.Duration
	defaultRetries int
}

// NewRegistryService constructs RegistryService.
func NewRegistryService(conns connectionRepo, factory AdapterFactory, cache *ResultCache, validate *validator.Validate, logger *zap.Logger, defaultTimeout time.Duration, defaultRetries int) *RegistryService {
	if factory == nil {
		factory = provider.New
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &RegistryService{
		conns:          conns,
		factory:        factory,
		cache:          cache,
		validator:      validate,
		logger:         logger,
		adapters:       make(map[string]provider.Adapter),
		defaultTimeout: defaultTimeout,
		defaultRetries: defaultRetries,
	}
}

// Register validates the connection's credentials via the adapter and only on
// success persists the connection as active and keeps the live adapter.
func (s *RegistryService) Register(ctx context.Context, req RegisterConnectionRequest) (*models.Connection, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid connection payload")
	}
	if !req.ProviderType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedProvider, "unsupported provider type: "+string(req.ProviderType))
	}

	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = int(s.defaultTimeout / time.Second)
	}
	if req.RetryAttempts <= 0 {
		req.RetryAttempts = s.defaultRetries
	}

	cfg := models.ProviderConfig{
		ProviderType:   req.ProviderType,
		BaseURL:        req.BaseURL,
		CredentialType: req.CredentialType,
		Credentials:    req.Credentials,
		Timeout:        time.Duration(req.TimeoutSeconds) * time.Second,
		RetryAttempts:  req.RetryAttempts,
	}
	adapter, err := s.factory(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	ok, err := adapter.Authenticate(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrProviderUnavailable.Code, appErrors.ErrProviderUnavailable.Status, "could not reach provider to validate credentials")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrProviderAuth, "provider rejected the supplied credentials")
	}

	conn := &models.Connection{
		InstitutionID:  req.InstitutionID,
		ProviderType:   req.ProviderType,
		BaseURL:        req.BaseURL,
		CredentialType: req.CredentialType,
		Credentials:    req.Credentials,
		TimeoutSeconds: req.TimeoutSeconds,
		RetryAttempts:  req.RetryAttempts,
		Status:         models.ConnectionActive,
		SyncStatus:     models.SyncIdle,
	}
	if err := s.conns.Create(ctx, conn); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist connection")
	}

	s.mu.Lock()
	s.adapters[conn.ID] = adapter
	s.mu.Unlock()

	s.logger.Info("connection registered",
		zap.String("connection_id", conn.ID),
		zap.String("institution_id", conn.InstitutionID),
		zap.String("provider", string(conn.ProviderType)))
	return conn, nil
}

// Adapter returns the live adapter for a connection, rebuilding it from the
// persisted configuration after a restart.
func (s *RegistryService) Adapter(ctx context.Context, connectionID string) (provider.Adapter, error) {
	s.mu.RLock()
	adapter, ok := s.adapters[connectionID]
	s.mu.RUnlock()
	if ok {
		return adapter, nil
	}

	conn, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	adapter, err = s.factory(conn.Config(), s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.adapters[connectionID]; ok {
		adapter = existing
	} else {
		s.adapters[connectionID] = adapter
	}
	s.mu.Unlock()
	return adapter, nil
}

// Get loads one connection.
func (s *RegistryService) Get(ctx context.Context, connectionID string) (*models.Connection, error) {
	conn, err := s.conns.FindByID(ctx, connectionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, appErrors.ErrConnectionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load connection")
	}
	return conn, nil
}

// List returns connections enriched with their cached last sync result.
func (s *RegistryService) List(ctx context.Context, institutionID string) ([]models.ConnectionSummary, error) {
	conns, err := s.conns.List(ctx, institutionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list connections")
	}
	summaries := make([]models.ConnectionSummary, 0, len(conns))
	for i := range conns {
		summary := models.ConnectionSummary{Connection: conns[i]}
		if s.cache != nil {
			summary.LastResult = s.cache.Load(ctx, conns[i].ID)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Remove drops the live adapter and deletes the persisted connection.
func (s *RegistryService) Remove(ctx context.Context, connectionID string) (bool, error) {
	removed, err := s.conns.Delete(ctx, connectionID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete connection")
	}
	if !removed {
		return false, nil
	}

	s.mu.Lock()
	delete(s.adapters, connectionID)
	s.mu.Unlock()
	if s.cache != nil {
		s.cache.Forget(ctx, connectionID)
	}

	s.logger.Info("connection removed", zap.String("connection_id", connectionID))
	return true, nil
}
