// Package apikey issues and verifies operator API keys.
package apikey

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cronbat/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// PrefixLen is the number of leading key characters stored in clear for
// lookup.
const PrefixLen = 8

const rawPrefix = "cbk_"

var (
	ErrInvalidName  = errors.New("key name is required")
	ErrInvalidScope = errors.New("unknown scope")
)

var knownScopes = map[string]bool{
	models.ScopeRead:    true,
	models.ScopeOperate: true,
	models.ScopeAdmin:   true,
}

// Generate creates a new key. The raw key is returned once and never
// stored; the model carries only its bcrypt hash.
func Generate(name string, scopes []string, cost int) (string, *models.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, ErrInvalidName
	}
	if len(scopes) == 0 {
		scopes = []string{models.ScopeRead}
	}
	for _, s := range scopes {
		if !knownScopes[s] {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidScope, s)
		}
	}

	raw := rawPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Matches reports whether raw is the key hashed into k.
func Matches(k *models.APIKey, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(raw)) == nil
}
