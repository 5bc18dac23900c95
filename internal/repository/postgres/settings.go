package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/followup-engine/internal/domain"
	"github.com/ignite/followup-engine/internal/pkg/logger"
	"github.com/ignite/followup-engine/internal/workinghours"
)

// Settings keys in engine_settings.
const (
	settingFollowupPolicy = "followup_policy"
	settingWorkingHours   = "working_hours"
)

// SettingsRepo implements followup.SettingsRepository over the
// engine_settings key/value table. A missing or malformed row resolves to
// the documented defaults; only an unreachable store surfaces as an error.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

func (r *SettingsRepo) value(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM engine_settings WHERE key = $1`,
		key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read setting %s: %w", key, err)
	}
	return raw, nil
}

func (r *SettingsRepo) FollowupPolicy(ctx context.Context) (domain.FollowupPolicy, error) {
	raw, err := r.value(ctx, settingFollowupPolicy)
	if err != nil {
		return domain.FollowupPolicy{}, err
	}
	if raw == nil {
		return domain.DefaultFollowupPolicy(), nil
	}
	var p domain.FollowupPolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.Warn("malformed followup_policy setting, using defaults", "error", err.Error())
		return domain.DefaultFollowupPolicy(), nil
	}
	return p, nil
}

func (r *SettingsRepo) WorkingHours(ctx context.Context) (workinghours.Config, error) {
	raw, err := r.value(ctx, settingWorkingHours)
	if err != nil {
		return workinghours.Config{}, err
	}
	if raw == nil {
		return workinghours.Default(), nil
	}
	var cfg workinghours.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		logger.Warn("malformed working_hours setting, using defaults", "error", err.Error())
		return workinghours.Default(), nil
	}
	return cfg, nil
}
