package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ethpoint/internal/config"
	"ethpoint/internal/model"
	"ethpoint/internal/repository"
	"ethpoint/pkg/logger"
)

// EnsureDefaultAdmin reconciles the configured admin account once at startup. It creates
// the account when missing, otherwise promotes it and resets its password if it no longer
// matches. Empty credentials disable it.
func EnsureDefaultAdmin(ctx context.Context, accounts *repository.AccountRepository, hasher *Hasher, catalog *Catalog, cfg config.AdminConfig) error {
	username := normalizeUsername(cfg.Username)
	if username == "" || cfg.Password == "" {
		return nil
	}
	if err := validateUsername(username); err != nil {
		return fmt.Errorf("default admin username %q: %w", username, err)
	}

	existing, err := accounts.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return fmt.Errorf("find admin account: %w", err)
	}

	if existing == nil {
		hash, err := hasher.Hash(cfg.Password)
		if err != nil {
			return err
		}
		admin := &model.Account{
			Username:     username,
			PasswordHash: hash,
			Role:         model.RoleAdmin,
		}
		admin.ApplyPlan(catalog.DefaultPlan(), time.Now())
		if err := accounts.Create(ctx, nil, admin); err != nil {
			return fmt.Errorf("create admin account: %w", err)
		}
		logger.Log.Info().Str("username", username).Msg("default admin created")
		return nil
	}

	changed := false
	if existing.Role != model.RoleAdmin {
		existing.Role = model.RoleAdmin
		changed = true
	}
	ok, err := hasher.Verify(existing.PasswordHash, cfg.Password)
	if err != nil || !ok {
		hash, err := hasher.Hash(cfg.Password)
		if err != nil {
			return err
		}
		existing.PasswordHash = hash
		changed = true
	}
	if !changed {
		return nil
	}

	if err := accounts.Save(ctx, nil, existing); err != nil {
		return fmt.Errorf("update admin account: %w", err)
	}
	logger.Log.Info().Str("username", username).Msg("default admin reconciled")
	return nil
}
