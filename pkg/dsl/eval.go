package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/recstack/recstack/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
	celEnvErr  error
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("item", cel.DynType),
		cel.Variable("label", cel.DynType),
		cel.Variable("rctx", cel.DynType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Program 是一条已编译的 CEL 表达式，可以安全地并发复用。
// 过滤规则在构建时编译一次，逐 item 求值时只做 Eval。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译一条 CEL 表达式。
//
// 表达式语法（CEL 标准语法）：
//   - 基础：label.recall_source == "trending" / label.strategy != "content"
//   - 数值：item.score > 0.7 / item.score >= 0.5
//   - 逻辑：label.category == "tech" && item.score > 0.8
//   - 包含：label.recall_source.contains("trending")
//
// 注意：CEL 访问不存在的 key 会报错，用 label.key != null 检查存在性。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %v", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %v", err)
	}

	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (p *Program) String() string { return p.expr }

// Match 对单个 item 求值，返回布尔结果。
func (p *Program) Match(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("eval error: %v", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(item *core.Item, rctx *core.RecommendContext) map[string]interface{} {
	labels := make(map[string]interface{})
	labelAccessor := make(map[string]interface{})
	if item != nil {
		for k, v := range item.Labels {
			labels[k] = map[string]interface{}{
				"value":  v.Value,
				"source": v.Source,
			}
			// label.recall_source 直接返回 value，简化常见写法
			labelAccessor[k] = v.Value
		}
	}

	itemMap := map[string]interface{}{}
	if item != nil {
		itemMap = map[string]interface{}{
			"id":       item.ID,
			"score":    item.Score,
			"features": item.Features,
			"meta":     item.Meta,
			"labels":   labels,
		}
	}

	rctxMap := map[string]interface{}{}
	if rctx != nil {
		rctxMap = map[string]interface{}{
			"user_id":   rctx.UserID,
			"device_id": rctx.DeviceID,
			"scene":     rctx.Scene,
			"params":    rctx.Params,
		}
	}

	return map[string]interface{}{
		"item":  itemMap,
		"label": labelAccessor,
		"rctx":  rctxMap,
	}
}
