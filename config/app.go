package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/recstack/recstack/collab"
	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/engine"
	"github.com/recstack/recstack/tracker"
	"github.com/recstack/recstack/trending"
)

// Duration 是可从 YAML 字符串（"15m"、"24h"）解析的时长。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// AppConfig 汇总各组件的可调参数。零值字段由各组件的
// withDefaults 回退到内置默认，因此配置文件只需写要覆盖的项。
type AppConfig struct {
	Collab   CollabConfig   `yaml:"collab"`
	Trending TrendingConfig `yaml:"trending"`
	Engine   EngineConfig   `yaml:"engine"`
	Tracker  TrackerConfig  `yaml:"tracker"`
}

// CollabConfig 对应 collab.Config。
type CollabConfig struct {
	MinSimilarity      float64 `yaml:"min_similarity"`
	MaxSimilarUsers    int     `yaml:"max_similar_users"`
	MinSupportingUsers int     `yaml:"min_supporting_users"`
	DecayFactor        float64 `yaml:"decay_factor"`
	DiversityWeight    float64 `yaml:"diversity_weight"`
	NoveltyWeight      float64 `yaml:"novelty_weight"`
}

func (c CollabConfig) Build() collab.Config {
	return collab.Config{
		MinSimilarity:      c.MinSimilarity,
		MaxSimilarUsers:    c.MaxSimilarUsers,
		MinSupportingUsers: c.MinSupportingUsers,
		DecayFactor:        c.DecayFactor,
		DiversityWeight:    c.DiversityWeight,
		NoveltyWeight:      c.NoveltyWeight,
	}
}

// TrendingConfig 对应 trending.Config。
type TrendingConfig struct {
	VelocityScale  float64  `yaml:"velocity_scale"`
	FreshnessDecay float64  `yaml:"freshness_decay"`
	SweepInterval  Duration `yaml:"sweep_interval"`
	RetainFor      Duration `yaml:"retain_for"`
}

func (c TrendingConfig) Build() trending.Config {
	return trending.Config{
		VelocityScale:  c.VelocityScale,
		FreshnessDecay: c.FreshnessDecay,
		SweepInterval:  time.Duration(c.SweepInterval),
		RetainFor:      time.Duration(c.RetainFor),
	}
}

// EngineConfig 对应 engine.Config。
type EngineConfig struct {
	DefaultCount         int                           `yaml:"default_count"`
	OverGenerate         int                           `yaml:"over_generate"`
	ContentKeepThreshold float64                       `yaml:"content_keep_threshold"`
	DiversityWeight      float64                       `yaml:"diversity_weight"`
	CacheTTL             Duration                      `yaml:"cache_ttl"`
	TrendingWindow       string                        `yaml:"trending_window"`
	TimeBoosts           map[string]map[string]float64 `yaml:"time_boosts"`
}

func (c EngineConfig) Build() engine.Config {
	return engine.Config{
		DefaultCount:         c.DefaultCount,
		OverGenerate:         c.OverGenerate,
		ContentKeepThreshold: c.ContentKeepThreshold,
		DiversityWeight:      c.DiversityWeight,
		CacheTTL:             time.Duration(c.CacheTTL),
		TrendingWindow:       core.TimeWindow(c.TrendingWindow),
		TimeBoosts:           c.TimeBoosts,
	}
}

// TrackerConfig 对应 tracker.Config。
type TrackerConfig struct {
	MinImpressions  int64    `yaml:"min_impressions"`
	TrendWindowDays int      `yaml:"trend_window_days"`
	SuggestInterval Duration `yaml:"suggest_interval"`
}

func (c TrackerConfig) Build() tracker.Config {
	return tracker.Config{
		MinImpressions:  c.MinImpressions,
		TrendWindowDays: c.TrendWindowDays,
		SuggestInterval: time.Duration(c.SuggestInterval),
	}
}

// LoadApp 从 YAML 文件加载组件配置。
func LoadApp(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}
