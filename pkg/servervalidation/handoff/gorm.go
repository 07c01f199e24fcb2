package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	sv "katydid-common-validation/pkg/servervalidation"
)

// ============================================================================
// 数据库快照存储
// ============================================================================

// 支持的数据库方言
const (
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// SnapshotRow 快照表记录
type SnapshotRow struct {
	Key       string     `gorm:"column:handoff_key;primaryKey;size:256"`
	Payload   []byte     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
}

// TableName 表名
func (SnapshotRow) TableName() string {
	return "validation_handoff_snapshots"
}

// OpenGorm 按方言打开数据库连接
func OpenGorm(dialect, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	case DialectMySQL:
		dialector = mysql.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	return db, nil
}

// GormStore 基于 gorm 的快照交接存储
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore 创建存储并迁移表结构
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&SnapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot table: %w", err)
	}
	return &GormStore{db: db, now: time.Now}, nil
}

// SaveSnapshot 实现 servervalidation.SnapshotStore，同键覆盖
func (s *GormStore) SaveSnapshot(ctx context.Context, key string, snap sv.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	row := SnapshotRow{Key: key, Payload: data, CreatedAt: s.now().UTC()}
	if ttl > 0 {
		expires := row.CreatedAt.Add(ttl)
		row.ExpiresAt = &expires
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// LoadSnapshot 实现 servervalidation.SnapshotStore，过期记录视为不存在
func (s *GormStore) LoadSnapshot(ctx context.Context, key string) (sv.Snapshot, error) {
	var row SnapshotRow
	err := s.db.WithContext(ctx).
		Where("handoff_key = ?", key).
		Where("expires_at IS NULL OR expires_at > ?", s.now().UTC()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sv.Snapshot{}, sv.ErrSnapshotNotFound
	}
	if err != nil {
		return sv.Snapshot{}, err
	}

	var snap sv.Snapshot
	if err := json.Unmarshal(row.Payload, &snap); err != nil {
		return sv.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// DeleteSnapshot 实现 servervalidation.SnapshotStore
func (s *GormStore) DeleteSnapshot(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("handoff_key = ?", key).Delete(&SnapshotRow{}).Error
}

// PurgeExpired 删除过期快照，返回删除数量
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Delete(&SnapshotRow{})
	return res.RowsAffected, res.Error
}
