// Package rule 把促销的附加条件适配到 CEL 表达式引擎。
package rule

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"upsell/internal/service/promotion/domain"
)

// CELEngine 是 domain.RuleEngine 接口的 CEL 实现。
// 表达式中可以访问变量 fact，例如 `fact.totalQuantity >= 3`。
// 编译后的程序按表达式原文缓存，可并发使用。
type CELEngine struct {
	env      *cel.Env
	programs sync.Map // string -> cel.Program
}

// NewCELEngine 创建规则引擎。
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("fact", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	return &CELEngine{env: env}, nil
}

// Evaluate 实现了 domain.RuleEngine 接口。
func (e *CELEngine) Evaluate(ruleDefinition string, fact domain.Fact) (bool, error) {
	// 1. 编译，或者取缓存
	prg, err := e.program(ruleDefinition)
	if err != nil {
		return false, err
	}

	// 2. 执行评估
	out, _, err := prg.Eval(map[string]any{"fact": toActivation(fact)})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate rule %q", ruleDefinition)
	}

	// 3. 结果必须是布尔值
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, errors.Errorf("rule %q returned %s, want bool", ruleDefinition, out.Type())
	}
	return ok, nil
}

func (e *CELEngine) program(expr string) (cel.Program, error) {
	if p, ok := e.programs.Load(expr); ok {
		return p.(cel.Program), nil
	}
	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile rule %q", expr)
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, errors.Errorf("rule %q has type %s, want bool", expr, t)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build program for rule %q", expr)
	}
	actual, _ := e.programs.LoadOrStore(expr, prg)
	return actual.(cel.Program), nil
}

// toActivation 把 Fact 转成 CEL 可以直接读取的 map，整数统一用 int64。
func toActivation(f domain.Fact) map[string]any {
	lines := make([]any, 0, len(f.Lines))
	for _, l := range f.Lines {
		lines = append(lines, map[string]any{
			"variantId":   l.VariantID,
			"productId":   l.ProductID,
			"quantity":    int64(l.Quantity),
			"collections": l.Collections,
			"tags":        l.Tags,
		})
	}
	return map[string]any{
		"promotionId":   f.PromotionID,
		"totalQuantity": int64(f.TotalQuantity),
		"lines":         lines,
	}
}
