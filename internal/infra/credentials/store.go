package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"adaptrix/internal/infra"
	"adaptrix/internal/sqlinline"
)

const (
	ProviderOpenAI   = "openai"
	ProviderSendGrid = "sendgrid"
)

// KeyFunc returns the API key to use for a request, or "" when none is configured.
type KeyFunc func(ctx context.Context) (string, error)

// Supported reports whether provider has a stored key slot.
func Supported(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderSendGrid:
		return true
	default:
		return false
	}
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) OpenAIAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderOpenAI)
}

func (s *Store) SendGridAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderSendGrid)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Set stores key for provider, replacing any previous key.
func (s *Store) Set(ctx context.Context, provider, key string) error {
	if !Supported(provider) {
		return fmt.Errorf("unsupported provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, key, nil)
}

// Resolver prefers a key from the environment and falls back to the stored one.
// A nil store resolves to envKey only.
func Resolver(store *Store, provider, envKey string) KeyFunc {
	envKey = strings.TrimSpace(envKey)
	return func(ctx context.Context) (string, error) {
		if envKey != "" || store == nil {
			return envKey, nil
		}
		return store.Token(ctx, provider)
	}
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
