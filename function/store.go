package function

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tensorzero/gateway/llm"
)

// shorthandRecord is the persisted row for one auto-instantiated shorthand
// model (spec §9 "lazily populated model-table entries for shorthand model
// names"): a single row per shorthand name, since a shorthand
// llm.ModelConfig always has exactly one provider.
type shorthandRecord struct {
	Name           string `gorm:"primaryKey;size:255"`
	ProviderKind   string `gorm:"size:50;not null"`
	ModelName      string `gorm:"size:255;not null"`
	CredentialKind string `gorm:"size:50;not null"`
	CredentialName string `gorm:"size:255"`
	CreatedAt      time.Time
}

func (shorthandRecord) TableName() string { return "tensorzero_shorthand_models" }

func recordFromModelConfig(name string, cfg llm.ModelConfig) shorthandRecord {
	p := cfg.Providers["default"]
	return shorthandRecord{
		Name:           name,
		ProviderKind:   string(p.Kind),
		ModelName:      p.ModelName,
		CredentialKind: string(p.Credential.Kind),
		CredentialName: p.Credential.Name,
	}
}

func (r shorthandRecord) toModelConfig() llm.ModelConfig {
	return llm.ModelConfig{
		Name:    r.Name,
		Routing: []string{"default"},
		Providers: map[string]llm.ProviderConfig{
			"default": {
				Kind:      llm.ProviderKind(r.ProviderKind),
				ModelName: r.ModelName,
				Credential: llm.CredentialLocation{
					Kind: llm.CredentialLocationKind(r.CredentialKind),
					Name: r.CredentialName,
				},
			},
		},
	}
}

// ShorthandStore durably mirrors Registry's in-memory shorthand cache in a
// relational table, so a shorthand model auto-instantiated on one process
// is already resolvable (without re-deriving its ProviderConfig) the next
// time any process starts up. It is optional: a Registry with no store
// behaves exactly as before, keying the cache only in memory for the
// process lifetime.
type ShorthandStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewShorthandStore migrates the shorthand table and returns a store bound
// to db. db is expected to come from gorm.Open(postgres.Open(dsn), ...).
func NewShorthandStore(db *gorm.DB, logger *zap.Logger) (*ShorthandStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&shorthandRecord{}); err != nil {
		return nil, err
	}
	return &ShorthandStore{db: db, logger: logger}, nil
}

// Load looks up a previously-persisted shorthand instantiation.
func (s *ShorthandStore) Load(ctx context.Context, name string) (llm.ModelConfig, bool) {
	var rec shorthandRecord
	if err := s.db.WithContext(ctx).First(&rec, "name = ?", name).Error; err != nil {
		return llm.ModelConfig{}, false
	}
	return rec.toModelConfig(), true
}

// Save persists a shorthand instantiation, ignoring a conflicting
// concurrent insert of the same name (the first writer wins, matching the
// in-memory sync.Map.LoadOrStore semantics Registry already provides).
func (s *ShorthandStore) Save(ctx context.Context, name string, cfg llm.ModelConfig) {
	rec := recordFromModelConfig(name, cfg)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		s.logger.Warn("failed to persist shorthand model instantiation", zap.String("model", name), zap.Error(err))
	}
}
