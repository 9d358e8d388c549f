package feature

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/recstack/recstack/core"
)

// Provider 是特征服务的领域接口：按实体取数值特征向量。
// 引擎与协同过滤把它当作可选的信号增强来源，缺失特征不是错误。
type Provider interface {
	// Name 返回特征源名称（用于日志/监控）
	Name() string

	// UserFeatures 返回用户特征向量，未知用户返回空 map
	UserFeatures(ctx context.Context, userID string) (map[string]float64, error)

	// ItemFeatures 返回物品特征向量，未知物品返回空 map
	ItemFeatures(ctx context.Context, itemID string) (map[string]float64, error)

	// Close 释放底层连接
	Close() error
}

// StoreProvider 把 core.Store 当作特征后端：特征向量以 JSON 存取。
// 适合单进程部署与测试；生产环境用 FeastProvider。
type StoreProvider struct {
	kv        core.Store
	keyPrefix string
}

// NewStoreProvider 创建基于 KV 存储的特征源。
func NewStoreProvider(kv core.Store) *StoreProvider {
	return &StoreProvider{kv: kv, keyPrefix: "feature"}
}

func (p *StoreProvider) Name() string { return "store" }

func (p *StoreProvider) key(kind, id string) string {
	return p.keyPrefix + ":" + kind + ":" + id
}

func (p *StoreProvider) UserFeatures(ctx context.Context, userID string) (map[string]float64, error) {
	return p.load(ctx, p.key("user", userID))
}

func (p *StoreProvider) ItemFeatures(ctx context.Context, itemID string) (map[string]float64, error) {
	return p.load(ctx, p.key("item", itemID))
}

// PutUserFeatures 写入用户特征向量。
func (p *StoreProvider) PutUserFeatures(ctx context.Context, userID string, features map[string]float64) error {
	return p.save(ctx, p.key("user", userID), features)
}

// PutItemFeatures 写入物品特征向量。
func (p *StoreProvider) PutItemFeatures(ctx context.Context, itemID string, features map[string]float64) error {
	return p.save(ctx, p.key("item", itemID), features)
}

func (p *StoreProvider) load(ctx context.Context, key string) (map[string]float64, error) {
	data, err := p.kv.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return map[string]float64{}, nil
		}
		return nil, fmt.Errorf("feature: load %s: %w", key, err)
	}
	var features map[string]float64
	if err := json.Unmarshal(data, &features); err != nil {
		return nil, fmt.Errorf("feature: decode %s: %w", key, err)
	}
	return features, nil
}

func (p *StoreProvider) save(ctx context.Context, key string, features map[string]float64) error {
	data, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("feature: encode %s: %w", key, err)
	}
	return p.kv.Set(ctx, key, data)
}

func (p *StoreProvider) Close() error { return nil }

var _ Provider = (*StoreProvider)(nil)
