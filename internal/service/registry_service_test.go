package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushub/lms-sync-api/internal/models"
	"github.com/campushub/lms-sync-api/internal/provider"
	appErrors "github.com/campushub/lms-sync-api/pkg/errors"
)

type mockRegistryRepo struct {
	mu    sync.Mutex
	seq   int
	conns map[string]*models.Connection
}

func newMockRegistryRepo() *mockRegistryRepo {
	return &mockRegistryRepo{conns: map[string]*models.Connection{}}
}

func (m *mockRegistryRepo) Create(ctx context.Context, conn *models.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if conn.ID == "" {
		conn.ID = "conn-" + string(rune('0'+m.seq))
	}
	cp := *conn
	m.conns[conn.ID] = &cp
	return nil
}

func (m *mockRegistryRepo) FindByID(ctx context.Context, id string) (*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[id]; ok {
		cp := *conn
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegistryRepo) List(ctx context.Context, institutionID string) ([]models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Connection
	for _, conn := range m.conns {
		if institutionID == "" || conn.InstitutionID == institutionID {
			out = append(out, *conn)
		}
	}
	return out, nil
}

func (m *mockRegistryRepo) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[id]; !ok {
		return false, nil
	}
	delete(m.conns, id)
	return true, nil
}

func validRegisterRequest() RegisterConnectionRequest {
	return RegisterConnectionRequest{
		InstitutionID:  "inst-1",
		ProviderType:   models.ProviderMoodle,
		BaseURL:        "https://lms.school.edu",
		CredentialType: models.CredentialPassword,
		Credentials:    models.Credentials{Username: "admin", Password: "pw"},
	}
}

func newRegistryFixture(adapter provider.Adapter, factoryErr error) (*RegistryService, *mockRegistryRepo, *int) {
	repo := newMockRegistryRepo()
	factoryCalls := 0
	factory := func(cfg models.ProviderConfig, log *zap.Logger) (provider.Adapter, error) {
		factoryCalls++
		if factoryErr != nil {
			return nil, factoryErr
		}
		return adapter, nil
	}
	svc := NewRegistryService(repo, factory, nil, nil, nil, 0, 1)
	return svc, repo, &factoryCalls
}

func TestRegisterValidatesCredentialsFirst(t *testing.T) {
	adapter := &stubAdapter{authOK: true}
	svc, repo, _ := newRegistryFixture(adapter, nil)

	conn, err := svc.Register(context.Background(), validRegisterRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, conn.ID)
	assert.Equal(t, models.ConnectionActive, conn.Status)
	assert.Equal(t, models.SyncIdle, conn.SyncStatus)
	assert.Equal(t, 30, conn.TimeoutSeconds)
	assert.Len(t, repo.conns, 1)
}

func TestRegisterRejectedCredentialsPersistNothing(t *testing.T) {
	adapter := &stubAdapter{authOK: false}
	svc, repo, _ := newRegistryFixture(adapter, nil)

	_, err := svc.Register(context.Background(), validRegisterRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProviderAuth.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.conns)
}

func TestRegisterUnreachableProvider(t *testing.T) {
	adapter := &stubAdapter{authErr: errors.New("connection refused")}
	svc, repo, _ := newRegistryFixture(adapter, nil)

	_, err := svc.Register(context.Background(), validRegisterRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProviderUnavailable.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.conns)
}

func TestRegisterUnsupportedProvider(t *testing.T) {
	svc, _, factoryCalls := newRegistryFixture(&stubAdapter{authOK: true}, nil)

	req := validRegisterRequest()
	req.ProviderType = "d2l"
	_, err := svc.Register(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnsupportedProvider.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, *factoryCalls)
}

func TestRegisterValidatesPayload(t *testing.T) {
	svc, _, _ := newRegistryFixture(&stubAdapter{authOK: true}, nil)

	req := validRegisterRequest()
	req.BaseURL = "not a url"
	_, err := svc.Register(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAdapterRebuildsFromPersistedConfig(t *testing.T) {
	adapter := &stubAdapter{authOK: true}
	svc, repo, factoryCalls := newRegistryFixture(adapter, nil)

	conn, err := svc.Register(context.Background(), validRegisterRequest())
	require.NoError(t, err)
	require.Equal(t, 1, *factoryCalls)

	// The live instance is reused without touching the factory again.
	_, err = svc.Adapter(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, *factoryCalls)

	// A fresh registry (restart) rebuilds from the stored configuration.
	rebuilt := NewRegistryService(repo, func(cfg models.ProviderConfig, log *zap.Logger) (provider.Adapter, error) {
		*factoryCalls++
		assert.Equal(t, models.ProviderMoodle, cfg.ProviderType)
		assert.Equal(t, "https://lms.school.edu", cfg.BaseURL)
		return adapter, nil
	}, nil, nil, nil, 0, 1)
	_, err = rebuilt.Adapter(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *factoryCalls)
}

func TestGetUnknownConnection(t *testing.T) {
	svc, _, _ := newRegistryFixture(&stubAdapter{authOK: true}, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConnectionNotFound.Code, appErrors.FromError(err).Code)
}

func TestRemoveDropsAdapter(t *testing.T) {
	adapter := &stubAdapter{authOK: true}
	svc, _, factoryCalls := newRegistryFixture(adapter, nil)

	conn, err := svc.Register(context.Background(), validRegisterRequest())
	require.NoError(t, err)

	removed, err := svc.Remove(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = svc.Remove(context.Background(), conn.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	// The connection row is gone, so the adapter cannot be rebuilt either.
	_, err = svc.Adapter(context.Background(), conn.ID)
	require.Error(t, err)
	assert.Equal(t, 1, *factoryCalls)
}

func TestListScopesByInstitution(t *testing.T) {
	adapter := &stubAdapter{authOK: true}
	svc, _, _ := newRegistryFixture(adapter, nil)

	_, err := svc.Register(context.Background(), validRegisterRequest())
	require.NoError(t, err)
	other := validRegisterRequest()
	other.InstitutionID = "inst-2"
	_, err = svc.Register(context.Background(), other)
	require.NoError(t, err)

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := svc.List(context.Background(), "inst-2")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "inst-2", scoped[0].InstitutionID)
}
