package tracker

import (
	"fmt"
	"sort"
	"time"

	"github.com/recstack/recstack/core"
)

// 建议类别：algorithm 指向策略本身，configuration 指向排序参数，
// presentation 指向展示层。
const (
	SuggestionAlgorithm     = "algorithm"
	SuggestionConfiguration = "configuration"
	SuggestionPresentation  = "presentation"
)

// 规则阈值。
const (
	lowCTRThreshold = 0.10 // 策略 CTR 低于此值触发 algorithm 建议
	mobileCTRRatio  = 0.70 // 移动端 CTR 低于桌面端的比例下限
	topPositions    = 3    // 位次异常检测中视为"头部"的位次数
)

// suggestionWindow 是建议规则扫描的记录窗口。
const suggestionWindow = 7 * 24 * time.Hour

// Suggestion 是一条规则化的优化建议。建议只供运营参考，从不自动生效。
type Suggestion struct {
	Kind      string    `json:"kind"`
	Target    string    `json:"target,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Suggestions 返回最近一轮生成的优化建议。
func (t *Tracker) Suggestions() []Suggestion {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Suggestion(nil), t.suggestions...)
}

func (t *Tracker) suggestLoop() {
	ticker := time.NewTicker(t.cfg.SuggestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.RegenerateSuggestions()
		case <-t.done:
			return
		}
	}
}

// RegenerateSuggestions 扫描最近一周的记录并重建建议列表。
// 上一轮还在进行时直接跳过，不排队。
func (t *Tracker) RegenerateSuggestions() {
	if !t.suggesting.CompareAndSwap(false, true) {
		t.log.Debug("tracker: suggestion pass already running, skipping")
		return
	}
	defer t.suggesting.Store(false)

	now := t.now()
	cutoff := now.Add(-suggestionWindow)

	byStrategy := make(map[core.Strategy]*GroupStats)
	byDevice := make(map[string]*GroupStats)
	byPosition := make(map[int]*GroupStats)

	t.mu.RLock()
	for _, m := range t.records {
		if m.PresentedAt.Before(cutoff) {
			continue
		}
		groupInto(byStrategy, m.Strategy, m)
		if m.Device != "" {
			groupInto(byDevice, m.Device, m)
		}
		if m.Position > 0 {
			groupInto(byPosition, m.Position, m)
		}
	}
	t.mu.RUnlock()

	finishAll(byStrategy)
	finishAll(byDevice)
	finishAll(byPosition)

	var suggestions []Suggestion
	suggestions = append(suggestions, t.lowCTRSuggestions(byStrategy, now)...)
	if s, ok := t.positionAnomaly(byPosition, now); ok {
		suggestions = append(suggestions, s)
	}
	if s, ok := t.mobileGap(byDevice, now); ok {
		suggestions = append(suggestions, s)
	}

	t.mu.Lock()
	t.suggestions = suggestions
	t.mu.Unlock()
}

// lowCTRSuggestions 对 CTR 低于阈值的策略给出算法层建议。
func (t *Tracker) lowCTRSuggestions(byStrategy map[core.Strategy]*GroupStats, now time.Time) []Suggestion {
	strategies := make([]core.Strategy, 0, len(byStrategy))
	for s := range byStrategy {
		strategies = append(strategies, s)
	}
	sort.Slice(strategies, func(i, j int) bool { return strategies[i] < strategies[j] })

	var out []Suggestion
	for _, s := range strategies {
		g := byStrategy[s]
		if g.Presented < t.cfg.MinImpressions || g.CTR >= lowCTRThreshold {
			continue
		}
		out = append(out, Suggestion{
			Kind:   SuggestionAlgorithm,
			Target: string(s),
			Message: fmt.Sprintf("strategy %s CTR %.1f%% is below %.0f%%, revisit its scoring signals",
				s, g.CTR*100, lowCTRThreshold*100),
			CreatedAt: now,
		})
	}
	return out
}

// positionAnomaly 检测位次异常：尾部位次的平均 CTR 反超头部位次时，
// 说明排序没有把最好的结果排在前面。
func (t *Tracker) positionAnomaly(byPosition map[int]*GroupStats, now time.Time) (Suggestion, bool) {
	var topClicked, topShown, tailClicked, tailShown int64
	for pos, g := range byPosition {
		if pos <= topPositions {
			topClicked += g.Clicked
			topShown += g.Presented
		} else {
			tailClicked += g.Clicked
			tailShown += g.Presented
		}
	}
	if topShown < t.cfg.MinImpressions || tailShown < t.cfg.MinImpressions {
		return Suggestion{}, false
	}
	topCTR := float64(topClicked) / float64(topShown)
	tailCTR := float64(tailClicked) / float64(tailShown)
	if tailCTR <= topCTR {
		return Suggestion{}, false
	}
	return Suggestion{
		Kind: SuggestionConfiguration,
		Message: fmt.Sprintf("positions beyond %d outperform the top ones (%.1f%% vs %.1f%% CTR), ranking order looks inverted",
			topPositions, tailCTR*100, topCTR*100),
		CreatedAt: now,
	}, true
}

// mobileGap 检测移动端明显弱于桌面端的情况。
func (t *Tracker) mobileGap(byDevice map[string]*GroupStats, now time.Time) (Suggestion, bool) {
	mobile, okM := byDevice["mobile"]
	desktop, okD := byDevice["desktop"]
	if !okM || !okD {
		return Suggestion{}, false
	}
	if mobile.Presented < t.cfg.MinImpressions || desktop.Presented < t.cfg.MinImpressions {
		return Suggestion{}, false
	}
	if desktop.CTR == 0 || mobile.CTR >= desktop.CTR*mobileCTRRatio {
		return Suggestion{}, false
	}
	return Suggestion{
		Kind:   SuggestionPresentation,
		Target: "mobile",
		Message: fmt.Sprintf("mobile CTR %.1f%% is under %.0f%% of desktop CTR %.1f%%, review the mobile layout",
			mobile.CTR*100, mobileCTRRatio*100, desktop.CTR*100),
		CreatedAt: now,
	}, true
}
