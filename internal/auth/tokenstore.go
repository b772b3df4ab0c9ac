package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/dmitrijs2005/fitsync/internal/repositories/metadata"
	"github.com/zalando/go-keyring"
)

// TokenStore persists the OAuth tokens between runs. Load returns (nil, nil)
// when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (*models.Tokens, error)
	Save(ctx context.Context, tokens models.Tokens) error
	Clear(ctx context.Context) error
}

const (
	keyringService = "fitsync"
	tokensKey      = "oauth_tokens"
)

// KeyringTokenStore keeps the tokens as one JSON secret in the OS keychain.
type KeyringTokenStore struct {
	account string
}

func NewKeyringTokenStore(account string) *KeyringTokenStore {
	return &KeyringTokenStore{account: account}
}

func (k *KeyringTokenStore) Load(ctx context.Context) (*models.Tokens, error) {
	secret, err := keyring.Get(keyringService, k.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}
	var t models.Tokens
	if err := json.Unmarshal([]byte(secret), &t); err != nil {
		return nil, fmt.Errorf("decode keyring tokens: %w", err)
	}
	return &t, nil
}

func (k *KeyringTokenStore) Save(ctx context.Context, tokens models.Tokens) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, k.account, string(raw)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (k *KeyringTokenStore) Clear(ctx context.Context) error {
	if err := keyring.Delete(keyringService, k.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// DBTokenStore keeps the tokens in the local state database.
type DBTokenStore struct {
	repo metadata.Repository
}

func NewDBTokenStore(repo metadata.Repository) *DBTokenStore {
	return &DBTokenStore{repo: repo}
}

func (d *DBTokenStore) Load(ctx context.Context) (*models.Tokens, error) {
	var t models.Tokens
	ok, err := metadata.GetJSON(ctx, d.repo, tokensKey, &t)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

func (d *DBTokenStore) Save(ctx context.Context, tokens models.Tokens) error {
	return metadata.SetJSON(ctx, d.repo, tokensKey, tokens)
}

func (d *DBTokenStore) Clear(ctx context.Context) error {
	return d.repo.Delete(ctx, tokensKey)
}

// FallbackTokenStore prefers primary and falls back to secondary when the
// primary is unavailable, e.g. on headless machines without a keychain.
type FallbackTokenStore struct {
	primary   TokenStore
	secondary TokenStore
	log       logging.Logger
}

func NewFallbackTokenStore(primary, secondary TokenStore, log logging.Logger) *FallbackTokenStore {
	return &FallbackTokenStore{primary: primary, secondary: secondary, log: log}
}

func (f *FallbackTokenStore) Load(ctx context.Context) (*models.Tokens, error) {
	t, err := f.primary.Load(ctx)
	if err == nil && t != nil {
		return t, nil
	}
	if err != nil {
		f.log.Debug(ctx, "primary token store unavailable", "error", err)
	}
	return f.secondary.Load(ctx)
}

func (f *FallbackTokenStore) Save(ctx context.Context, tokens models.Tokens) error {
	if err := f.primary.Save(ctx, tokens); err != nil {
		f.log.Debug(ctx, "primary token store unavailable, using fallback", "error", err)
		return f.secondary.Save(ctx, tokens)
	}
	// drop any copy left by an earlier fallback save
	return f.secondary.Clear(ctx)
}

func (f *FallbackTokenStore) Clear(ctx context.Context) error {
	if err := f.primary.Clear(ctx); err != nil {
		f.log.Debug(ctx, "primary token store unavailable", "error", err)
	}
	return f.secondary.Clear(ctx)
}
