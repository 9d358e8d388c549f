package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/recstack/recstack/core"
)

// cacheKey 按用户、条数、策略子集与过滤条件区分缓存条目。
func cacheKey(req Request, strategies []core.Strategy) string {
	return fmt.Sprintf("rec:%s:%d:%s:%s", req.UserID, req.Count, strategiesKey(strategies), req.Filters.fingerprint())
}

// cacheGet 读取缓存的推荐列表。缓存是建议性的：
// 读失败、解码失败、条目过期都按未命中处理，从不报错。
func (e *Engine) cacheGet(ctx context.Context, req Request, strategies []core.Strategy) []*core.Recommendation {
	if e.cache == nil {
		return nil
	}
	data, err := e.cache.Get(ctx, cacheKey(req, strategies))
	if err != nil {
		if !core.IsStoreNotFound(err) {
			e.log.WithField("user_id", req.UserID).WithError(err).Warn("engine: cache read failed, regenerating")
		}
		return nil
	}
	var recs []*core.Recommendation
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil
	}

	now := e.now()
	kept := recs[:0]
	for _, rec := range recs {
		if !rec.Expired(now) {
			kept = append(kept, rec)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// cachePut 把生成结果写入缓存，失败只记日志。
func (e *Engine) cachePut(ctx context.Context, req Request, strategies []core.Strategy, recs []*core.Recommendation) {
	if e.cache == nil || len(recs) == 0 {
		return
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, cacheKey(req, strategies), data, int(e.cfg.CacheTTL.Seconds())); err != nil {
		e.log.WithField("user_id", req.UserID).WithError(err).Warn("engine: cache write failed")
	}
}
