package function

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tensorzero/gateway/llm"
)

func setupMockStore(t *testing.T) (*ShorthandStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnResult(sqlmock.NewResult(0, 0))

	dialector := postgres.New(postgres.Config{Conn: mockDB})
	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	store, err := NewShorthandStore(gormDB, zap.NewNop())
	require.NoError(t, err)

	return store, mock, mockDB
}

func TestShorthandStore_SaveThenLoad(t *testing.T) {
	store, mock, _ := setupMockStore(t)
	ctx := context.Background()

	cfg := llm.ModelConfig{
		Name:    "openai::gpt-4o-mini",
		Routing: []string{"default"},
		Providers: map[string]llm.ProviderConfig{
			"default": {
				Kind:      llm.ProviderOpenAI,
				ModelName: "gpt-4o-mini",
				Credential: llm.CredentialLocation{
					Kind: llm.CredentialLocationEnv,
					Name: "OPENAI_API_KEY",
				},
			},
		},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO")).WillReturnResult(sqlmock.NewResult(1, 1))
	store.Save(ctx, cfg.Name, cfg)

	rows := sqlmock.NewRows([]string{"name", "provider_kind", "model_name", "credential_kind", "credential_name", "created_at"}).
		AddRow(cfg.Name, "openai", "gpt-4o-mini", "env", "OPENAI_API_KEY", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WillReturnRows(rows)

	loaded, ok := store.Load(ctx, cfg.Name)
	require.True(t, ok)
	require.Equal(t, cfg.Name, loaded.Name)
	require.Equal(t, llm.ProviderOpenAI, loaded.Providers["default"].Kind)
	require.Equal(t, "gpt-4o-mini", loaded.Providers["default"].ModelName)
}

func TestShorthandStore_LoadMiss(t *testing.T) {
	store, mock, _ := setupMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).WillReturnError(gorm.ErrRecordNotFound)

	_, ok := store.Load(context.Background(), "unknown::model")
	require.False(t, ok)
}
