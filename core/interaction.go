package core

import "time"

// InteractionType 是用户与物品的互动类型。
type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionBookmark InteractionType = "bookmark"
	InteractionComment  InteractionType = "comment"
	InteractionShare    InteractionType = "share"
	InteractionFavorite InteractionType = "favorite"
)

// 基础互动权重：隐式评分与热点计分的共同输入。
// view 可按停留时长加权（最高 3 倍，封顶 3 分钟），其余类型为固定权重。
var interactionBaseWeights = map[InteractionType]float64{
	InteractionView:     0.1,
	InteractionBookmark: 0.5,
	InteractionComment:  0.6,
	InteractionShare:    0.7,
	InteractionFavorite: 0.8,
}

// maxDwellBoost 是 view 互动的停留时长加权上限（倍数）。
const maxDwellBoost = 3.0

// dwellCap 是参与加权的停留时长上限。
const dwellCap = 3 * time.Minute

// InteractionWeight 计算一次互动的权重，结果封顶 1.0。
// view 类型按停留时长线性加权：0 时长为基础权重，dwellCap 及以上为 3 倍。
func InteractionWeight(t InteractionType, dwell time.Duration) float64 {
	w, ok := interactionBaseWeights[t]
	if !ok {
		return 0
	}
	if t == InteractionView && dwell > 0 {
		d := dwell
		if d > dwellCap {
			d = dwellCap
		}
		boost := 1 + (maxDwellBoost-1)*float64(d)/float64(dwellCap)
		w *= boost
	}
	if w > 1 {
		w = 1
	}
	return w
}

// InteractionEvent 是一条被追踪的互动事件。
// 画像、协同过滤、热点发现各自消费其中不同的字段。
type InteractionEvent struct {
	UserID      string          `json:"user_id"`
	ItemID      string          `json:"item_id"`
	Type        InteractionType `json:"type"`
	Category    string          `json:"category,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Language    string          `json:"language,omitempty"`
	Dwell       time.Duration   `json:"dwell,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Weight 返回该事件的互动权重。
func (e *InteractionEvent) Weight() float64 {
	return InteractionWeight(e.Type, e.Dwell)
}
