package core

import "time"

// ContentRecord 是内容抽取/富化子系统产出的记录形态。
// recstack 只消费它的输出形状：作为内容召回的候选底座与质量过滤的输入，
// 不负责抽取、富化、质量打分本身。
type ContentRecord struct {
	ID          string    `json:"id"` // 物品 ID 或规范化 URL
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title,omitempty"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	ContentType string    `json:"content_type,omitempty"` // article / video / podcast ...
	Language    string    `json:"language,omitempty"`
	Quality     float64   `json:"quality"`      // 0-100，由质量过滤子系统给出
	ReadingTime int       `json:"reading_time"` // 分钟
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// ToItem 将内容记录转换为链路候选 Item，Meta 携带过滤/重排所需字段。
func (c *ContentRecord) ToItem() *Item {
	it := NewItem(c.ID)
	it.Meta["url"] = c.URL
	it.Meta["title"] = c.Title
	it.Meta["category"] = c.Category
	it.Meta["tags"] = c.Tags
	it.Meta["content_type"] = c.ContentType
	it.Meta["language"] = c.Language
	it.Meta["quality"] = c.Quality
	it.Meta["reading_time"] = c.ReadingTime
	if !c.PublishedAt.IsZero() {
		it.Meta["published_at"] = c.PublishedAt
	}
	return it
}
