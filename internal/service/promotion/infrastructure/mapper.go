package infrastructure

import "upsell/internal/pkg/bootstrap"

// metafieldRef 定位一个店铺下的 metafield。
type metafieldRef struct {
	Namespace string
	Key       string
}

func refFromConfig(c bootstrap.CatalogConfig) metafieldRef {
	return metafieldRef{Namespace: c.Namespace, Key: c.Key}
}

// toModel 把目录原文转换成待写入的数据库模型
func (r metafieldRef) toModel(shopID, blob string) *MetafieldModel {
	return &MetafieldModel{ShopID: shopID, Namespace: r.Namespace, Key: r.Key, Value: blob}
}

// cacheKey 是目录在 Redis 中的 key
func (r metafieldRef) cacheKey(shopID string) string {
	return "upsell:catalog:{" + shopID + "}:" + r.Namespace + ":" + r.Key
}
