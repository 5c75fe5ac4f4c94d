package imageprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// minFailedLoginPause is the minimum interval between login retries against
// the same (user, registry) pair after a failed attempt, mirroring
// MIN_FAILED_LOGIN_PAUSE in the original image prober.
const minFailedLoginPause = 3 * time.Second

// cacheTTL bounds how long a cached image config is trusted before a probe
// is allowed to refresh it.
const cacheTTL = 24 * time.Hour

// Store persists decoded image configs and registry login failures.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// cachedConfig loads a non-stale cached container config for image, if one
// exists.
func (s *Store) cachedConfig(ctx context.Context, image string) (*ContainerConfig, bool, error) {
	var raw []byte
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT config, updated_at FROM dockerfile_cache WHERE image = $1`, image,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading image config cache: %w", err)
	}
	if time.Since(updatedAt) > cacheTTL {
		return nil, false, nil
	}

	var cfg ContainerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, false, fmt.Errorf("decoding cached image config: %w", err)
	}
	return &cfg, true, nil
}

// saveConfig upserts the decoded container config for image.
func (s *Store) saveConfig(ctx context.Context, image string, cfg ContainerConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding image config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO dockerfile_cache (image, config, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (image) DO UPDATE SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at
	`, image, raw)
	if err != nil {
		return fmt.Errorf("saving image config cache: %w", err)
	}
	return nil
}

// secondsUntilAllowed returns how long the caller must wait before retrying
// a login against registry as user, based on the most recent failure, or
// zero if a retry is allowed now. Mirrors when_next_login_allowed.
func (s *Store) secondsUntilAllowed(ctx context.Context, userID, registry string) (time.Duration, error) {
	var failedAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT failed_at FROM private_registry_failed_login
		WHERE user_id = $1 AND registry = $2
	`, userID, registry).Scan(&failedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading failed login record: %w", err)
	}

	elapsed := time.Since(failedAt)
	if elapsed >= minFailedLoginPause {
		return 0, nil
	}
	return minFailedLoginPause - elapsed, nil
}

// recordFailedLogin marks that a login attempt against registry as user
// just failed, starting the rate-limit pause.
func (s *Store) recordFailedLogin(ctx context.Context, userID, registry string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO private_registry_failed_login (user_id, registry, failed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, registry) DO UPDATE SET failed_at = EXCLUDED.failed_at
	`, userID, registry)
	if err != nil {
		return fmt.Errorf("recording failed login: %w", err)
	}
	return nil
}

// clearFailedLogin removes any rate-limit record after a successful login.
func (s *Store) clearFailedLogin(ctx context.Context, userID, registry string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM private_registry_failed_login WHERE user_id = $1 AND registry = $2
	`, userID, registry)
	if err != nil {
		return fmt.Errorf("clearing failed login: %w", err)
	}
	return nil
}
