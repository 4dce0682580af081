package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Setting keys.
const (
	KeyBlowThreshold = "audio.threshold"
	KeyCooldown      = "candle.cooldown_ms"
)

// Calibration holds the user-tunable overrides. Nil fields are unset and
// fall back to the file configuration.
type Calibration struct {
	BlowThreshold *float64 `json:"blow_threshold,omitempty"`
	CooldownMS    *int64   `json:"cooldown_ms,omitempty"`
}

// Validate checks that set fields are in range.
func (c Calibration) Validate() error {
	if c.BlowThreshold != nil && (*c.BlowThreshold <= 0 || *c.BlowThreshold > 1) {
		return fmt.Errorf("blow_threshold must be in (0, 1], got %v", *c.BlowThreshold)
	}
	if c.CooldownMS != nil && *c.CooldownMS < 0 {
		return fmt.Errorf("cooldown_ms must not be negative, got %d", *c.CooldownMS)
	}
	return nil
}

// Cooldown returns the cooldown override, if set.
func (c Calibration) Cooldown() (time.Duration, bool) {
	if c.CooldownMS == nil {
		return 0, false
	}
	return time.Duration(*c.CooldownMS) * time.Millisecond, true
}

// SettingsRepository provides access to the settings table.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}

// Delete removes key.
func (r *SettingsRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Calibration reads the calibration overrides.
func (r *SettingsRepository) Calibration() (Calibration, error) {
	var c Calibration

	if v, err := r.Get(KeyBlowThreshold); err == nil {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c, fmt.Errorf("parse %s: %w", KeyBlowThreshold, err)
		}
		c.BlowThreshold = &f
	} else if !errors.Is(err, ErrNotFound) {
		return c, err
	}

	if v, err := r.Get(KeyCooldown); err == nil {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, fmt.Errorf("parse %s: %w", KeyCooldown, err)
		}
		c.CooldownMS = &ms
	} else if !errors.Is(err, ErrNotFound) {
		return c, err
	}

	return c, nil
}

// SaveCalibration validates c and stores its set fields in one transaction.
// Unset fields keep their stored value.
func (r *SettingsRepository) SaveCalibration(c Calibration) error {
	if err := c.Validate(); err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	now := time.Now()

	if c.BlowThreshold != nil {
		if _, err := tx.Exec(upsert, KeyBlowThreshold, strconv.FormatFloat(*c.BlowThreshold, 'g', -1, 64), now); err != nil {
			return err
		}
	}
	if c.CooldownMS != nil {
		if _, err := tx.Exec(upsert, KeyCooldown, strconv.FormatInt(*c.CooldownMS, 10), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}
