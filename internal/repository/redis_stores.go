package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OptionPulse/internal/domain/models"
	domrepo "OptionPulse/internal/domain/repository"
	"OptionPulse/pkg/cache"
)

const (
	credKeyPrefix     = "credentials"
	baselineKeyPrefix = "baseline"
	settingsKeyPrefix = "settings"

	// Tokens are only good for the issuing IST day; a generous TTL keeps
	// the key around for diagnostics without letting it pile up forever.
	credTTL     = 48 * time.Hour
	baselineTTL = 48 * time.Hour
)

var credIndexKey = cache.GenerateKey(credKeyPrefix, "index")

// RedisCredentialStore keeps per-user access tokens in the shared cache.
// Discovery filters by the issue date, so an expired key and a missing key
// behave identically.
type RedisCredentialStore struct {
	cache cache.Service
}

func NewRedisCredentialStore(c cache.Service) domrepo.CredentialStore {
	return &RedisCredentialStore{cache: c}
}

func (s *RedisCredentialStore) Get(ctx context.Context, username string) (*models.Credential, error) {
	var cred models.Credential
	err := s.cache.Get(ctx, cache.GenerateKey(credKeyPrefix, username), &cred)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", username, err)
	}
	return &cred, nil
}

func (s *RedisCredentialStore) Put(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.Username == "" {
		return fmt.Errorf("credential missing username")
	}
	if err := s.cache.Set(ctx, cache.GenerateKey(credKeyPrefix, cred.Username), cred, credTTL); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return s.updateIndex(ctx, cred.Username, true)
}

func (s *RedisCredentialStore) Delete(ctx context.Context, username string) error {
	if err := s.cache.Delete(ctx, cache.GenerateKey(credKeyPrefix, username)); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return s.updateIndex(ctx, username, false)
}

func (s *RedisCredentialStore) Users(ctx context.Context) ([]string, error) {
	var users []string
	err := s.cache.Get(ctx, credIndexKey, &users)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// updateIndex maintains the username index. Writes come from the auth
// endpoint only, so a read-modify-write cycle is race-free in practice.
func (s *RedisCredentialStore) updateIndex(ctx context.Context, username string, add bool) error {
	users, err := s.Users(ctx)
	if err != nil {
		return err
	}

	out := make([]string, 0, len(users)+1)
	for _, u := range users {
		if u != username {
			out = append(out, u)
		}
	}
	if add {
		out = append(out, username)
	}
	if err := s.cache.Set(ctx, credIndexKey, out, 0); err != nil {
		return fmt.Errorf("update credential index: %w", err)
	}
	return nil
}

// RedisBaselineStore persists the day's baseline per (user, IST date).
type RedisBaselineStore struct {
	cache cache.Service
}

func NewRedisBaselineStore(c cache.Service) domrepo.BaselineStore {
	return &RedisBaselineStore{cache: c}
}

func baselineKey(username, date string) string {
	return cache.GenerateKeyWithParams(baselineKeyPrefix, username, date)
}

func (s *RedisBaselineStore) Get(ctx context.Context, username, date string) (*models.BaselineSnapshot, error) {
	var snap models.BaselineSnapshot
	err := s.cache.Get(ctx, baselineKey(username, date), &snap)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get baseline: %w", err)
	}
	return &snap, nil
}

func (s *RedisBaselineStore) Put(ctx context.Context, snap *models.BaselineSnapshot) error {
	if snap == nil || snap.Username == "" || snap.Date == "" {
		return fmt.Errorf("baseline missing username or date")
	}
	if err := s.cache.Set(ctx, baselineKey(snap.Username, snap.Date), snap, baselineTTL); err != nil {
		return fmt.Errorf("store baseline: %w", err)
	}
	return nil
}

func (s *RedisBaselineStore) Delete(ctx context.Context, username, date string) error {
	if err := s.cache.Delete(ctx, baselineKey(username, date)); err != nil {
		return fmt.Errorf("delete baseline: %w", err)
	}
	return nil
}

// RedisSettingsStore persists per-user settings with no expiry; thresholds
// survive restarts and day rolls.
type RedisSettingsStore struct {
	cache cache.Service
}

func NewRedisSettingsStore(c cache.Service) domrepo.SettingsStore {
	return &RedisSettingsStore{cache: c}
}

func (s *RedisSettingsStore) Get(ctx context.Context, username string) (*models.Settings, error) {
	var settings models.Settings
	err := s.cache.Get(ctx, cache.GenerateKey(settingsKeyPrefix, username), &settings)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &settings, nil
}

func (s *RedisSettingsStore) Put(ctx context.Context, settings *models.Settings) error {
	if settings == nil || settings.Username == "" {
		return fmt.Errorf("settings missing username")
	}
	if err := s.cache.Set(ctx, cache.GenerateKey(settingsKeyPrefix, settings.Username), settings, 0); err != nil {
		return fmt.Errorf("store settings: %w", err)
	}
	return nil
}
