package infrastructure

import "time"

// MetafieldModel 对应数据库中的 app_metafields 表，每个店铺的每个 (namespace, key) 一行。
// 促销目录以 JSON 原文存在 Value 中。
type MetafieldModel struct {
	ID        uint   `gorm:"primaryKey"`
	ShopID    string `gorm:"size:191;not null;uniqueIndex:uk_shop_namespace_key"`
	Namespace string `gorm:"size:64;not null;uniqueIndex:uk_shop_namespace_key"`
	Key       string `gorm:"size:64;not null;uniqueIndex:uk_shop_namespace_key"`
	Value     string `gorm:"type:longtext"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (MetafieldModel) TableName() string {
	return "app_metafields"
}
