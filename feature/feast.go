package feature

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	feasttypes "github.com/feast-dev/feast/sdk/go/protos/feast/types"
)

// FeastConfig 是 Feast 特征源的配置。
type FeastConfig struct {
	Host    string
	Port    int // 默认 6565
	Project string

	// UserFeatures / ItemFeatures 是要拉取的特征全名列表
	UserFeatures []string
	ItemFeatures []string

	// 实体键名，默认 user_id / item_id
	UserEntityKey string
	ItemEntityKey string
}

func (c FeastConfig) withDefaults() FeastConfig {
	if c.Port == 0 {
		c.Port = 6565
	}
	if c.UserEntityKey == "" {
		c.UserEntityKey = "user_id"
	}
	if c.ItemEntityKey == "" {
		c.ItemEntityKey = "item_id"
	}
	return c
}

// FeastProvider 将 Feast Feature Server（gRPC）适配为 Provider。
// 未配置特征列表的实体类型返回空向量，不发起远程调用。
type FeastProvider struct {
	client *feastsdk.GrpcClient
	cfg    FeastConfig
}

// NewFeastProvider 创建 Feast 特征源。
func NewFeastProvider(cfg FeastConfig) (*FeastProvider, error) {
	cfg = cfg.withDefaults()
	client, err := feastsdk.NewGrpcClient(cfg.Host, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("feature: feast client: %w", err)
	}
	return &FeastProvider{client: client, cfg: cfg}, nil
}

func (p *FeastProvider) Name() string { return "feast" }

func (p *FeastProvider) UserFeatures(ctx context.Context, userID string) (map[string]float64, error) {
	return p.getOnline(ctx, p.cfg.UserFeatures, p.cfg.UserEntityKey, userID)
}

func (p *FeastProvider) ItemFeatures(ctx context.Context, itemID string) (map[string]float64, error) {
	return p.getOnline(ctx, p.cfg.ItemFeatures, p.cfg.ItemEntityKey, itemID)
}

func (p *FeastProvider) getOnline(ctx context.Context, features []string, entityKey, entityID string) (map[string]float64, error) {
	if len(features) == 0 {
		return map[string]float64{}, nil
	}

	req := &feastsdk.OnlineFeaturesRequest{
		Features: features,
		Entities: []feastsdk.Row{
			{entityKey: feastsdk.StrVal(entityID)},
		},
		Project: p.cfg.Project,
	}
	resp, err := p.client.GetOnlineFeatures(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("feature: feast get online features: %w", err)
	}

	rows := resp.Rows()
	if len(rows) == 0 {
		return map[string]float64{}, nil
	}

	out := make(map[string]float64, len(features))
	for _, name := range features {
		if val, ok := rows[0][name]; ok {
			if f, ok := numericValue(val); ok {
				out[name] = f
			}
		}
	}
	return out, nil
}

// numericValue 把 Feast 的 proto Value 压成 float64，非数值类型丢弃。
func numericValue(v *feasttypes.Value) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Val.(type) {
	case *feasttypes.Value_DoubleVal:
		return val.DoubleVal, true
	case *feasttypes.Value_FloatVal:
		return float64(val.FloatVal), true
	case *feasttypes.Value_Int64Val:
		return float64(val.Int64Val), true
	case *feasttypes.Value_Int32Val:
		return float64(val.Int32Val), true
	case *feasttypes.Value_BoolVal:
		if val.BoolVal {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (p *FeastProvider) Close() error {
	p.client = nil
	return nil
}

var _ Provider = (*FeastProvider)(nil)
