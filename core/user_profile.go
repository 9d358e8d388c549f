package core

import "time"

// InterestProvenance 标记兴趣的来源：显式声明 / 隐式行为 / 模型推断。
type InterestProvenance string

const (
	ProvenanceExplicit InterestProvenance = "explicit"
	ProvenanceImplicit InterestProvenance = "implicit"
	ProvenanceInferred InterestProvenance = "inferred"
)

// Interest 是一个带置信度与来源的话题兴趣。
type Interest struct {
	Score      float64            `json:"score"`      // 兴趣强度 [0,1]
	Confidence float64            `json:"confidence"` // 证据充分程度 [0,1]
	Provenance InterestProvenance `json:"provenance"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Preferences 是用户的加权偏好向量。
// 各 map 的 value 为权重 [0,1]，由画像层在每次互动后归一化维护。
type Preferences struct {
	Categories   map[string]float64 `json:"categories"`
	Tags         map[string]float64 `json:"tags"`
	ContentTypes map[string]float64 `json:"content_types"`
	Languages    map[string]float64 `json:"languages"`

	ReadingLevel    string  `json:"reading_level,omitempty"`    // basic / intermediate / advanced
	PreferredLength string  `json:"preferred_length,omitempty"` // short / medium / long
	Freshness       float64 `json:"freshness"`                  // 新鲜度偏好 [0,1]
}

// CategoryUsage 是某个类别下的使用统计。
type CategoryUsage struct {
	Interactions int       `json:"interactions"`
	TotalDwell   int64     `json:"total_dwell_seconds"`
	LastUsed     time.Time `json:"last_used"`
}

// Behavior 是用户的行为统计。
// InteractionHistory 有界保留最近 MaxInteractionHistory 条，旧事件被滚动淘汰。
type Behavior struct {
	InteractionHistory []InteractionEvent       `json:"interaction_history"`
	SearchHistory      []string                 `json:"search_history"`
	CategoryUsage      map[string]CategoryUsage `json:"category_usage"`

	// BookmarkCadence 是近似的收藏频率（次/天），随互动滚动更新
	BookmarkCadence float64 `json:"bookmark_cadence"`
}

// Demographics 是用户的人口统计属性（冷启动 / 基础过滤）。
type Demographics struct {
	AgeRange string `json:"age_range,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Location string `json:"location,omitempty"`
	Language string `json:"language,omitempty"`
}

// MaxInteractionHistory 是画像中保留的互动历史上限。
const MaxInteractionHistory = 1000

// MaxSearchHistory 是画像中保留的搜索历史上限。
const MaxSearchHistory = 100

// UserProfile 是用户画像的核心抽象。
//
// 一句话定义：用户画像 = 推荐链路的"全局上下文 + 特征源 + 决策信号"
//
// 它不是某一个 Node，而是：
//   - 被所有组件共享（内容召回、协同过滤、最终置信度）
//   - 在每次被追踪的互动后就地更新
//   - 只会被覆盖，不会被自动删除
type UserProfile struct {
	UserID string `json:"user_id"`

	Preferences  Preferences         `json:"preferences"`
	Behavior     Behavior            `json:"behavior"`
	Demographics Demographics        `json:"demographics"`
	Interests    map[string]Interest `json:"interests"`

	CreatedAt  time.Time `json:"created_at"`
	UpdateTime time.Time `json:"update_time"`
}

// NewUserProfile 创建一个新的用户画像。
func NewUserProfile(userID string) *UserProfile {
	now := time.Now()
	return &UserProfile{
		UserID: userID,
		Preferences: Preferences{
			Categories:   make(map[string]float64),
			Tags:         make(map[string]float64),
			ContentTypes: make(map[string]float64),
			Languages:    make(map[string]float64),
		},
		Behavior: Behavior{
			InteractionHistory: make([]InteractionEvent, 0),
			SearchHistory:      make([]string, 0),
			CategoryUsage:      make(map[string]CategoryUsage),
		},
		Interests:  make(map[string]Interest),
		CreatedAt:  now,
		UpdateTime: now,
	}
}

// AddInteraction 追加一条互动历史，超出上限时滚动淘汰最旧的事件。
func (p *UserProfile) AddInteraction(ev InteractionEvent) {
	p.Behavior.InteractionHistory = append(p.Behavior.InteractionHistory, ev)
	if n := len(p.Behavior.InteractionHistory); n > MaxInteractionHistory {
		p.Behavior.InteractionHistory = p.Behavior.InteractionHistory[n-MaxInteractionHistory:]
	}
	p.UpdateTime = time.Now()
}

// AddSearch 追加一条搜索历史。
func (p *UserProfile) AddSearch(query string) {
	if query == "" {
		return
	}
	p.Behavior.SearchHistory = append(p.Behavior.SearchHistory, query)
	if n := len(p.Behavior.SearchHistory); n > MaxSearchHistory {
		p.Behavior.SearchHistory = p.Behavior.SearchHistory[n-MaxSearchHistory:]
	}
	p.UpdateTime = time.Now()
}

// UpdateInterest 写入/更新一个话题兴趣。
func (p *UserProfile) UpdateInterest(topic string, in Interest) {
	if p.Interests == nil {
		p.Interests = make(map[string]Interest)
	}
	in.UpdatedAt = time.Now()
	p.Interests[topic] = in
	p.UpdateTime = in.UpdatedAt
}

// Completeness 度量画像的充实程度 [0,1]，用于冷启动置信度缩放。
// 加权项：类别偏好 0.3、标签偏好 0.2、互动历史 0.3、兴趣 0.2。
// 每项按"是否有数据"与数据量线性打分，避免对冷启动用户输出过度自信的推荐。
func (p *UserProfile) Completeness() float64 {
	score := 0.0
	score += 0.3 * ratio(len(p.Preferences.Categories), 5)
	score += 0.2 * ratio(len(p.Preferences.Tags), 10)
	score += 0.3 * ratio(len(p.Behavior.InteractionHistory), 20)
	score += 0.2 * ratio(len(p.Interests), 5)
	return score
}

func ratio(n, full int) float64 {
	if n <= 0 {
		return 0
	}
	if n >= full {
		return 1
	}
	return float64(n) / float64(full)
}
