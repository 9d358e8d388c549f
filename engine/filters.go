package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/recstack/recstack/core"
)

// Filters 是请求级的内容约束，作用于所有策略的候选。
// 零值不过滤。未知的属性（目录中查不到的候选）按宽松处理：
// 只有确定不符合约束的候选才会被剔除。
type Filters struct {
	// Categories 限定类别，空切片表示不限
	Categories []string

	// Tags 要求至少命中一个标签，空切片表示不限
	Tags []string

	// Language 限定内容语言
	Language string

	// MinQuality 是最低质量分（0-100），<= 0 表示不限
	MinQuality float64
}

func (f Filters) empty() bool {
	return len(f.Categories) == 0 && len(f.Tags) == 0 && f.Language == "" && f.MinQuality <= 0
}

// fingerprint 参与缓存 key，保证不同过滤条件不共享缓存条目。
func (f Filters) fingerprint() string {
	if f.empty() {
		return ""
	}
	return fmt.Sprintf("%s|%s|%s|%g",
		strings.Join(f.Categories, ","), strings.Join(f.Tags, ","), f.Language, f.MinQuality)
}

// applyFilters 在召回后对各策略候选池做请求级过滤。
// 候选属性优先取目录记录，目录缺失时回退到召回元数据。
func (e *Engine) applyFilters(ctx context.Context, f Filters, pools map[core.Strategy][]*core.Recommendation) {
	if f.empty() {
		return
	}

	records := make(map[string]*core.ContentRecord)
	lookup := func(id string) *core.ContentRecord {
		if rec, ok := records[id]; ok {
			return rec
		}
		var rec *core.ContentRecord
		if e.catalog != nil {
			if got, err := e.catalog.Get(ctx, id); err == nil {
				rec = got
			}
		}
		records[id] = rec
		return rec
	}

	for s, pool := range pools {
		kept := pool[:0]
		for _, rec := range pool {
			if f.matches(rec, lookup(rec.TargetID)) {
				kept = append(kept, rec)
			}
		}
		pools[s] = kept
	}
}

func (f Filters) matches(rec *core.Recommendation, record *core.ContentRecord) bool {
	category := rec.Metadata.Category
	tags := rec.Metadata.Tags
	if record != nil {
		if record.Category != "" {
			category = record.Category
		}
		if len(record.Tags) > 0 {
			tags = record.Tags
		}
	}

	if len(f.Categories) > 0 && !containsString(f.Categories, category) {
		return false
	}
	if len(f.Tags) > 0 && !anyOverlap(f.Tags, tags) {
		return false
	}
	if f.Language != "" && record != nil && record.Language != "" && record.Language != f.Language {
		return false
	}
	if f.MinQuality > 0 {
		quality := rec.Metadata.Quality
		if record != nil {
			quality = record.Quality
		}
		if quality > 0 && quality < f.MinQuality {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func anyOverlap(want, have []string) bool {
	for _, w := range want {
		if containsString(have, w) {
			return true
		}
	}
	return false
}
