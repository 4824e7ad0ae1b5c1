package domain

// StorePromotion 是目录中促销的统一投影，不论原始结构如何都暴露相同的字段。
// 各类型特有的参数放在 Configuration 中，按类型做 type switch 取用。
type StorePromotion struct {
	ID            string
	Title         string
	Type          PromotionType
	Message       string
	Priority      int
	Condition     string
	Target        Selector
	Discount      Discount
	Configuration PromotionConfiguration
}

// PromotionConfiguration 是按促销类型区分的配置载荷。
type PromotionConfiguration interface {
	PromotionType() PromotionType
}

// BundleConfig 是组合购的配置。
type BundleConfig struct {
	OfferItems OfferSelector
	Discount   Discount
}

// UpgradeConfig 是升级优惠的配置。
type UpgradeConfig struct {
	OfferItems OfferSelector
	Discount   Discount
}

// VolumeConfig 是阶梯数量折扣的配置。
type VolumeConfig struct {
	Tiers []VolumeTier
}

// FreeGiftConfig 是赠品的配置，赠品总是免费。
type FreeGiftConfig struct {
	OfferItems OfferSelector
}

func (BundleConfig) PromotionType() PromotionType   { return PromotionTypeBundle }
func (UpgradeConfig) PromotionType() PromotionType  { return PromotionTypeUpgrade }
func (VolumeConfig) PromotionType() PromotionType   { return PromotionTypeVolume }
func (FreeGiftConfig) PromotionType() PromotionType { return PromotionTypeFreeGift }
