package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// SettingsRepo persists the settings keyspace, unique on (app_id, key, user_id).
type SettingsRepo struct{ Pool PgxPool }

// NewSettingsRepo constructs a SettingsRepo with the given pool.
func NewSettingsRepo(p PgxPool) *SettingsRepo { return &SettingsRepo{Pool: p} }

// Get loads one setting.
func (r *SettingsRepo) Get(ctx domain.Context, appID, key, userID string) (domain.Setting, error) {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.Get")
	defer span.End()
	q := `SELECT app_id, key, user_id, value, updated_at FROM settings WHERE app_id=$1 AND key=$2 AND user_id=$3`
	row := r.Pool.QueryRow(ctx, q, appID, key, userID)
	var s domain.Setting
	var value []byte
	if err := row.Scan(&s.AppID, &s.Key, &s.UserID, &value, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Setting{}, fmt.Errorf("op=setting.get: %w", domain.ErrNotFound)
		}
		return domain.Setting{}, fmt.Errorf("op=setting.get: %w", err)
	}
	s.Value = scanJSONMap(value)
	return s, nil
}

// Upsert writes one setting.
func (r *SettingsRepo) Upsert(ctx domain.Context, s domain.Setting) error {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.Upsert")
	defer span.End()
	q := `INSERT INTO settings (app_id, key, user_id, value, updated_at) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (app_id, key, user_id) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`
	if _, err := r.Pool.Exec(ctx, q, s.AppID, s.Key, s.UserID, jsonVal(s.Value), time.Now().UTC()); err != nil {
		return fmt.Errorf("op=setting.upsert: %w", err)
	}
	return nil
}

// Delete removes one setting; missing rows are not an error.
func (r *SettingsRepo) Delete(ctx domain.Context, appID, key, userID string) error {
	tracer := otel.Tracer("repo.settings")
	ctx, span := tracer.Start(ctx, "settings.Delete")
	defer span.End()
	q := `DELETE FROM settings WHERE app_id=$1 AND key=$2 AND user_id=$3`
	if _, err := r.Pool.Exec(ctx, q, appID, key, userID); err != nil {
		return fmt.Errorf("op=setting.delete: %w", err)
	}
	return nil
}
