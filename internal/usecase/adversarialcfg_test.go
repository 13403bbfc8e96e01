package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

type fakeSettings struct{ store map[string]domain.Setting }

func newFakeSettings() *fakeSettings {
	return &fakeSettings{store: map[string]domain.Setting{}}
}

func (f *fakeSettings) key(appID, key, userID string) string {
	return appID + "/" + key + "/" + userID
}

func (f *fakeSettings) Get(_ domain.Context, appID, key, userID string) (domain.Setting, error) {
	s, ok := f.store[f.key(appID, key, userID)]
	if !ok {
		return domain.Setting{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSettings) Upsert(_ domain.Context, s domain.Setting) error {
	f.store[f.key(s.AppID, s.Key, s.UserID)] = s
	return nil
}

func (f *fakeSettings) Delete(_ domain.Context, appID, key, userID string) error {
	delete(f.store, f.key(appID, key, userID))
	return nil
}

func newTestAdvConfigService() (*AdversarialConfigService, *fakeSettings) {
	settings := newFakeSettings()
	return NewAdversarialConfigService(settings, "default", "system"), settings
}

func TestAdvConfigService_GetFallsBackToDefault(t *testing.T) {
	svc, _ := newTestAdvConfigService()
	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultAdversarialConfig(), cfg)
}

func TestAdvConfigService_UpdateThenGet(t *testing.T) {
	svc, settings := newTestAdvConfigService()
	ctx := context.Background()

	cfg := DefaultAdversarialConfig()
	cfg.Categories[0].Weight = 5

	require.NoError(t, svc.Update(ctx, cfg))
	assert.Len(t, settings.store, 1)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Categories[0].Weight)
	assert.Len(t, got.Rules, len(cfg.Rules))
}

func TestAdvConfigService_UpdateRejectsInvalid(t *testing.T) {
	svc, settings := newTestAdvConfigService()

	cfg := DefaultAdversarialConfig()
	cfg.Rules[0].Categories = []string{"no_such_category"}

	err := svc.Update(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, settings.store, "invalid config must not be persisted")
}

func TestAdvConfigService_Reset(t *testing.T) {
	svc, _ := newTestAdvConfigService()
	ctx := context.Background()

	cfg := DefaultAdversarialConfig()
	cfg.Categories[0].Enabled = false
	require.NoError(t, svc.Update(ctx, cfg))

	require.NoError(t, svc.Reset(ctx))

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultAdversarialConfig(), got)
}

func TestAdvConfigService_YAMLRoundTrip(t *testing.T) {
	svc, _ := newTestAdvConfigService()
	ctx := context.Background()

	out, err := svc.ExportYAML(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	imported, err := svc.ImportYAML(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, DefaultAdversarialConfig(), imported)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultAdversarialConfig(), got)
}

func TestAdvConfigService_ImportRejectsBadYAML(t *testing.T) {
	svc, settings := newTestAdvConfigService()
	_, err := svc.ImportYAML(context.Background(), []byte("categories: [unclosed"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, settings.store)
}
