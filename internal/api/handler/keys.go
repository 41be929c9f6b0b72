package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cronbat/internal/api/response"
	"github.com/kiranshivaraju/cronbat/internal/apikey"
	"github.com/kiranshivaraju/cronbat/internal/store"
	"github.com/kiranshivaraju/cronbat/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyStore manages API keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type keyBody struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key,omitempty"`
	KeyPrefix  string     `json:"key_prefix"`
	Scopes     []string   `json:"scopes"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func newKeyBody(k *models.APIKey) keyBody {
	return keyBody{
		ID:         k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Scopes:     k.Scopes,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// NewCreateKeyHandler returns POST /api/v1/admin/keys. The raw key is in
// the response and nowhere else.
func NewCreateKeyHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string   `json:"name"`
			Scopes []string `json:"scopes"`
		}
		if !decodeBody(w, r, &req) {
			return
		}

		raw, key, err := apikey.Generate(req.Name, req.Scopes, bcrypt.DefaultCost)
		if err != nil {
			if errors.Is(err, apikey.ErrInvalidName) || errors.Is(err, apikey.ErrInvalidScope) {
				invalid(w, err.Error())
				return
			}
			writeError(w, r, err)
			return
		}

		if err := s.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_KEY",
					"An API key with this name already exists", nil)
				return
			}
			writeError(w, r, err)
			return
		}

		body := newKeyBody(key)
		body.Key = raw
		response.Created(w, body)
	}
}

// NewListKeysHandler returns GET /api/v1/admin/keys without hashes.
func NewListKeysHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.ListAPIKeys(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]keyBody, len(keys))
		for i, k := range keys {
			out[i] = newKeyBody(k)
		}
		response.JSON(w, out)
	}
}

// NewRevokeKeyHandler returns DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := pathParam(r, "keyID")
		id, err := uuid.Parse(raw)
		if err != nil {
			invalid(w, "key id must be a UUID")
			return
		}
		if err := s.RevokeAPIKey(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
				return
			}
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
