package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go-auth-server/internal/cache"
	"go-auth-server/internal/model"
)

// TokenRepository keeps token records in the shared KV store under token:<kind>:<id>,
// each with a TTL equal to its kind's lifetime.
type TokenRepository struct {
	store cache.Store
}

func NewTokenRepository(store cache.Store) *TokenRepository {
	return &TokenRepository{store: store}
}

func tokenKey(kind model.TokenKind, id string) string {
	return fmt.Sprintf("token:%s:%s", kind, id)
}

func (r *TokenRepository) Save(ctx context.Context, token *model.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := r.store.Set(ctx, tokenKey(token.Kind, token.ID), data, token.TTL); err != nil {
		return fmt.Errorf("store %s token: %w", token.Kind, err)
	}
	return nil
}

// Get returns model.ErrTokenNotFound when the record is absent or has expired.
func (r *TokenRepository) Get(ctx context.Context, kind model.TokenKind, id string) (*model.Token, error) {
	data, ok, err := r.store.Get(ctx, tokenKey(kind, id))
	if err != nil {
		return nil, fmt.Errorf("get %s token: %w", kind, err)
	}
	if !ok {
		return nil, model.ErrTokenNotFound
	}

	var token model.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &token, nil
}

// Consume deletes the record and reports whether this caller removed it. Of several
// concurrent callers exactly one sees true.
func (r *TokenRepository) Consume(ctx context.Context, kind model.TokenKind, id string) (bool, error) {
	existed, err := r.store.Delete(ctx, tokenKey(kind, id))
	if err != nil {
		return false, fmt.Errorf("consume %s token: %w", kind, err)
	}
	return existed, nil
}

func (r *TokenRepository) Delete(ctx context.Context, kind model.TokenKind, id string) error {
	if _, err := r.store.Delete(ctx, tokenKey(kind, id)); err != nil {
		return fmt.Errorf("delete %s token: %w", kind, err)
	}
	return nil
}
