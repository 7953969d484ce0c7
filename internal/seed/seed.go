// Package seed creates a default owner account on first boot when the
// accounts table is empty.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/datacove/datacove/internal/auth"
	"github.com/datacove/datacove/internal/model"
)

// AdminOptions configures the seed owner account.
type AdminOptions struct {
	Email        string
	SeedPassword string // if empty, a random password is generated
}

// EnsureAdmin creates a seed owner account if no accounts exist.
// It prints the generated password to stdout and returns nil.
// If a password was supplied in opts it is used directly.
// The function is idempotent, safe to call on every startup.
func EnsureAdmin(ctx context.Context, db *gorm.DB, opts AdminOptions, log *slog.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&model.Account{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if count > 0 {
		log.Info("seed owner already exists")
		return nil
	}

	password := opts.SeedPassword
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generate seed password: %w", err)
		}
		// Print the generated password to stdout exactly once.
		fmt.Printf("[datacove] seed owner password: %s\n", password)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	account := &model.Account{
		Kind:          model.KindIndividual,
		Name:          "seedowner",
		DisplayName:   "Seed Owner",
		Email:         opts.Email,
		PasswordHash:  hash,
		EmailVerified: true,
	}
	if err := db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("insert seed owner: %w", err)
	}

	log.Info("seed owner created", "email", opts.Email)
	return nil
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
