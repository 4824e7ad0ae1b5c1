// Package evaluator 是折扣计算的核心：输入购物车和促销目录，输出平台可执行的折扣指令。
// 整个过程没有 I/O，相同输入永远得到相同输出。
package evaluator

import (
	"fmt"

	"github.com/rs/zerolog"

	"upsell/internal/service/promotion/domain"
)

type options struct {
	log   zerolog.Logger
	rules domain.RuleEngine
}

// Option 调整一次评估的可选行为。
type Option func(*options)

// WithLogger 指定诊断日志输出，默认丢弃。
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRuleEngine 启用促销的附加条件。未设置时忽略所有 condition。
func WithRuleEngine(r domain.RuleEngine) Option {
	return func(o *options) { o.rules = r }
}

// Evaluate 计算购物车可享受的折扣。
// 流程: 解析目录 -> 合并加购凭证 -> 依次执行组合购/升级/阶梯/赠品 -> 归并输出。
// 任何异常都降级为空结果，不会向调用方抛出。
func Evaluate(in domain.EvaluationInput, opts ...Option) (out domain.EvaluationOutput) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("panic", fmt.Sprint(r)).Msg("discount evaluation panicked, returning empty result")
			out = domain.EmptyResult()
		}
	}()

	// 1. 目录为空时没有任何促销可以生效
	promos := normalizeCatalog(in.PromotionCatalog, o.log)
	if len(promos) == 0 || len(in.CartLines) == 0 {
		return domain.EmptyResult()
	}

	// 2. 建立购物车索引并合并加购凭证
	c, payloads := buildCart(in.CartLines)
	records := cleanIDs(processPromotionRecords(payloads))

	// 3. 各类型处理器顺序固定，数量覆盖以后写者为准
	e := newEvaluation(promos, records, c, o)
	e.applyBundles()
	e.applyUpgrades()
	e.applyVolume()
	e.applyFreeGifts()

	// 4. 归并
	return Reduce(c.lineItems)
}
