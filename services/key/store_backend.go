package key

import (
	"context"
	"errors"
	"time"

	"github.com/memorybank/keyctl/pkg/db"
	"github.com/memorybank/keyctl/pkg/errutil"
	"github.com/memorybank/keyctl/pkg/keygen"
	"github.com/memorybank/keyctl/services/identity"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIKey is the api_keys row. Only prefix and hash are persisted; the
// plaintext exists in memory for the duration of one create call.
type APIKey struct {
	ID         string         `gorm:"column:id;primaryKey"`
	UserID     string         `gorm:"column:user_id;not null;index"`
	ProjectID  string         `gorm:"column:project_id;not null;index"`
	KeyHash    []byte         `gorm:"column:key_hash;not null"`
	KeyPrefix  string         `gorm:"column:key_prefix;not null"`
	Label      *string        `gorm:"column:label"`
	Scopes     pq.StringArray `gorm:"column:scopes;type:text[];not null"`
	RateLimit  int            `gorm:"column:rate_limit;not null;default:60"`
	LastUsedAt *time.Time     `gorm:"column:last_used_at"`
	ExpiresAt  *time.Time     `gorm:"column:expires_at"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	RevokedAt  *time.Time     `gorm:"column:revoked_at;index"`
}

func (APIKey) TableName() string { return "api_keys" }

// StoreBackend operates directly on the relational store, for bootstrap
// and admin sessions that bypass the API. Unlike the remote variant it
// must be told who owns a new key; identity resolution turns operator
// input into those refs.
type StoreBackend struct {
	db       *gorm.DB
	node     *snowflake.Node
	identity *identity.Service
	provider string
	log      *zap.Logger
}

func NewStoreBackend(gdb *gorm.DB, node *snowflake.Node, ids *identity.Service, dsn string, log *zap.Logger) *StoreBackend {
	return &StoreBackend{
		db:       gdb,
		node:     node,
		identity: ids,
		provider: db.Provider(dsn),
		log:      log,
	}
}

func (b *StoreBackend) Name() string { return "store" }

func (b *StoreBackend) Info() string { return b.provider }

func (b *StoreBackend) RequiresOwnerRefs() bool { return true }

func (b *StoreBackend) toRecord(row *APIKey, now time.Time) *Record {
	rec := &Record{
		ID:         row.ID,
		Prefix:     row.KeyPrefix,
		Label:      row.Label,
		Scopes:     append([]string{}, row.Scopes...),
		RateLimit:  row.RateLimit,
		LastUsedAt: row.LastUsedAt,
		ExpiresAt:  row.ExpiresAt,
		CreatedAt:  row.CreatedAt,
		RevokedAt:  row.RevokedAt,
		UserID:     row.UserID,
		ProjectID:  row.ProjectID,
	}
	rec.DeriveStatus(now)
	return rec
}

func (b *StoreBackend) ListKeys(ctx context.Context, includeRevoked bool) ([]*Record, error) {
	q := b.db.WithContext(ctx).Order("created_at DESC")
	if !includeRevoked {
		q = q.Where("revoked_at IS NULL")
	}

	var rows []*APIKey
	if err := q.Find(&rows).Error; err != nil {
		return nil, errutil.Backend("failed to list keys", errutil.WithErr(err))
	}

	now := time.Now().UTC()
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, b.toRecord(row, now))
	}
	return out, nil
}

func (b *StoreBackend) CreateKey(ctx context.Context, p CreateParams) (*Record, error) {
	if p.UserID == "" || p.ProjectID == "" {
		return nil, errutil.Validation("user and project refs are required to create a key")
	}
	if p.Environment == "" {
		p.Environment = keygen.EnvLive
	}
	if p.RateLimit <= 0 {
		p.RateLimit = DefaultRateLimit
	}

	material, err := keygen.Generate(p.Environment)
	if err != nil {
		return nil, errutil.Internal("failed to generate key material", errutil.WithErr(err))
	}

	var expiresAt *time.Time
	if p.ExpiresInDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, p.ExpiresInDays)
		expiresAt = &t
	}

	scopes := p.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	row := APIKey{
		ID:        b.node.Generate().String(),
		UserID:    p.UserID,
		ProjectID: p.ProjectID,
		KeyHash:   material.Hash,
		KeyPrefix: material.Prefix,
		Label:     p.Label,
		Scopes:    scopes,
		RateLimit: p.RateLimit,
		ExpiresAt: expiresAt,
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, errutil.Backend("failed to insert key", errutil.WithErr(err))
	}

	b.log.Info("key created",
		zap.String("key_id", row.ID),
		zap.String("prefix", row.KeyPrefix),
	)

	rec := b.toRecord(&row, time.Now().UTC())
	rec.Key = material.Plaintext
	return rec, nil
}

// RevokeKey is a conditional update: the revoked_at IS NULL guard makes
// the second call on the same id a no-op reporting false, and leaves the
// original revocation timestamp untouched.
func (b *StoreBackend) RevokeKey(ctx context.Context, id string) (bool, error) {
	res := b.db.WithContext(ctx).
		Model(&APIKey{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", time.Now().UTC())
	if res.Error != nil {
		return false, errutil.Backend("failed to revoke key", errutil.WithErr(res.Error))
	}

	if res.RowsAffected == 0 {
		return false, nil
	}

	b.log.Info("key revoked", zap.String("key_id", id))
	return true, nil
}

func (b *StoreBackend) GetKeyInfo(ctx context.Context, id string) (*Record, error) {
	var row APIKey
	err := b.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errutil.Backend("failed to fetch key", errutil.WithErr(err))
	}
	return b.toRecord(&row, time.Now().UTC()), nil
}

func (b *StoreBackend) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	sqlDB, err := b.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

// FindOrCreateUser delegates to identity resolution; only this variant
// carries it.
func (b *StoreBackend) FindOrCreateUser(ctx context.Context, username, email string) (string, error) {
	return b.identity.FindOrCreateUser(ctx, username, email)
}

func (b *StoreBackend) FindOrCreateProject(ctx context.Context, name, ownerID string) (string, error) {
	return b.identity.FindOrCreateProject(ctx, name, ownerID)
}

var _ Backend = (*StoreBackend)(nil)
var _ identity.Resolver = (*StoreBackend)(nil)
