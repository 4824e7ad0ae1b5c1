package infrastructure

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"upsell/internal/pkg/bootstrap"
	"upsell/internal/service/promotion/domain"
)

// GormCatalogRepository 是 CatalogRepository 的 GORM 实现
type GormCatalogRepository struct {
	db  *gorm.DB
	ref metafieldRef
}

// NewGormCatalogRepository 创建一个新的 GORM 仓储实例
func NewGormCatalogRepository(db *gorm.DB, cfg bootstrap.CatalogConfig) *GormCatalogRepository {
	return &GormCatalogRepository{db: db, ref: refFromConfig(cfg)}
}

const defaultDialTimeout = 5 * time.Second

// OpenMySQL 连接 MySQL。DSN 会被规范化：强制 parseTime，未设置时补上连接超时。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormmysql.Open(normalized), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	return db, nil
}

// NormalizeDSN 解析并重写 DSN。
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "invalid mysql dsn")
	}
	cfg.ParseTime = true
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultDialTimeout
	}
	return cfg.FormatDSN(), nil
}

// AutoMigrate 创建或更新 app_metafields 表
func (r *GormCatalogRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&MetafieldModel{})
}

// FindCatalog 使用 GORM 从数据库中查找店铺的促销目录
func (r *GormCatalogRepository) FindCatalog(ctx context.Context, shopID string) (string, error) {
	var model MetafieldModel
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND namespace = ? AND `key` = ?", shopID, r.ref.Namespace, r.ref.Key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrCatalogNotFound
		}
		return "", errors.Wrapf(err, "find catalog for shop %s", shopID)
	}
	return model.Value, nil
}

// SaveCatalog 写入目录原文，已存在时覆盖
func (r *GormCatalogRepository) SaveCatalog(ctx context.Context, shopID, blob string) error {
	err := r.upsert(r.db.WithContext(ctx), shopID, blob).Error
	if err != nil {
		return errors.Wrapf(err, "save catalog for shop %s", shopID)
	}
	return nil
}

func (r *GormCatalogRepository) upsert(db *gorm.DB, shopID, blob string) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}, {Name: "namespace"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(r.ref.toModel(shopID, blob))
}
