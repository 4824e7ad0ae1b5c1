package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"upsell/internal/pkg/bootstrap"
)

func TestNormalizeDSN(t *testing.T) {
	dsn, err := NormalizeDSN("user:pass@tcp(db:3306)/upsell")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "timeout=5s")

	dsn, err = NormalizeDSN("user:pass@tcp(db:3306)/upsell?timeout=1s")
	require.NoError(t, err)
	assert.Contains(t, dsn, "timeout=1s")

	_, err = NormalizeDSN("not a dsn")
	assert.Error(t, err)
}

func TestSaveCatalogIsUpsert(t *testing.T) {
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/upsell?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)

	repo := NewGormCatalogRepository(db, bootstrap.DefaultConfig().Catalog)
	stmt := repo.upsert(db.Session(&gorm.Session{DryRun: true}), "shop-1", `{}`).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, "INSERT INTO `app_metafields`")
	assert.Contains(t, sql, "ON DUPLICATE KEY UPDATE")
	assert.Contains(t, stmt.Vars, "shop-1")
	assert.Contains(t, stmt.Vars, "promotions")
}
