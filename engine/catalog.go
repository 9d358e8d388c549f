package engine

import (
	"context"
	"sync"

	"github.com/recstack/recstack/core"
)

// Catalog 是内容候选底座：内容抽取/富化子系统产出的记录集合。
// 引擎只读取它，从不写入。
type Catalog interface {
	// Get 返回单条内容记录；不存在时返回 NOT_FOUND。
	Get(ctx context.Context, id string) (*core.ContentRecord, error)

	// List 返回至多 limit 条候选记录，limit <= 0 表示全部。
	List(ctx context.Context, limit int) ([]*core.ContentRecord, error)
}

// MemoryCatalog 是进程内的 Catalog 实现，按写入顺序返回候选。
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[string]*core.ContentRecord
	order   []string
}

// NewMemoryCatalog 创建内存内容目录。
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[string]*core.ContentRecord)}
}

// Put 写入或覆盖一条内容记录。
func (c *MemoryCatalog) Put(rec *core.ContentRecord) {
	if rec == nil || rec.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[rec.ID]; !ok {
		c.order = append(c.order, rec.ID)
	}
	cp := *rec
	c.records[rec.ID] = &cp
}

func (c *MemoryCatalog) Get(ctx context.Context, id string) (*core.ContentRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeNotFound, "engine: content "+id+" not found")
	}
	cp := *rec
	return &cp, nil
}

func (c *MemoryCatalog) List(ctx context.Context, limit int) ([]*core.ContentRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*core.ContentRecord, 0, n)
	for _, id := range c.order[:n] {
		cp := *c.records[id]
		out = append(out, &cp)
	}
	return out, nil
}

var _ Catalog = (*MemoryCatalog)(nil)
