package experiment

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/recstack/recstack/core"
)

// State 是实验的生命周期状态。
// 合法迁移：draft → running → {paused, completed}，paused 可恢复为 running。
type State string

const (
	StateDraft     State = "draft"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
)

// allocationTolerance 是流量分配总和允许的浮点误差。
const allocationTolerance = 0.001

// Variant 是实验的一个分组。
type Variant struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// TrafficAllocation 是该分组的流量占比，全部分组合计必须为 1.0
	TrafficAllocation float64 `json:"traffic_allocation"`

	// Config 是分组生效时下发的策略参数
	Config map[string]any `json:"config,omitempty"`
}

// Experiment 是一个 A/B 实验。第一个分组约定为对照组。
type Experiment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Variants    []Variant `json:"variants"`
	State       State     `json:"state"`

	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`

	// Results 是最近一次 Analyze 的产出，按需计算后挂在实验上
	Results *Results `json:"results,omitempty"`
}

// Spec 是创建实验的输入。
type Spec struct {
	Name        string
	Description string
	Variants    []Variant
}

// Registry 是实验注册表：创建、状态机、确定性分流、曝光/转化计数。
type Registry struct {
	mu          sync.RWMutex
	experiments map[string]*Experiment

	// expID -> variantID -> 计数
	exposures   map[string]map[string]int64
	conversions map[string]map[string]int64

	// expID -> userID -> variantID，仅用于转化归因；
	// 分流本身是纯哈希计算，不依赖这张表
	assignments map[string]map[string]string

	log logrus.FieldLogger
	now func() time.Time
}

// Option 配置 Registry。
type Option func(*Registry)

// WithLogger 注入日志器。
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Registry) { r.log = log }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry 创建实验注册表。
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		experiments: make(map[string]*Experiment),
		exposures:   make(map[string]map[string]int64),
		conversions: make(map[string]map[string]int64),
		assignments: make(map[string]map[string]string),
		log:         logrus.StandardLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create 创建一个 draft 状态的实验。
// 硬性不变量：至少两个分组，流量分配合计 1.0（±0.001），违反即拒绝。
func (r *Registry) Create(ctx context.Context, spec Spec) (*Experiment, error) {
	if spec.Name == "" {
		return nil, core.NewDomainError(core.ModuleExperiment, core.ErrorCodeInvalidInput, "experiment: empty name")
	}
	if len(spec.Variants) < 2 {
		return nil, core.NewDomainError(core.ModuleExperiment, core.ErrorCodeInvalidInput, "experiment: at least two variants required")
	}
	total := 0.0
	for _, v := range spec.Variants {
		if v.TrafficAllocation < 0 {
			return nil, core.NewDomainError(core.ModuleExperiment, core.ErrorCodeInvalidInput, "experiment: negative traffic allocation")
		}
		total += v.TrafficAllocation
	}
	if math.Abs(total-1.0) > allocationTolerance {
		return nil, core.NewDomainError(core.ModuleExperiment, core.ErrorCodeInvalidInput,
			fmt.Sprintf("experiment: traffic allocations sum to %.4f, must be 1.0", total))
	}

	exp := &Experiment{
		ID:          uuid.NewString(),
		Name:        spec.Name,
		Description: spec.Description,
		Variants:    make([]Variant, len(spec.Variants)),
		State:       StateDraft,
		CreatedAt:   r.now(),
	}
	copy(exp.Variants, spec.Variants)
	for i := range exp.Variants {
		if exp.Variants[i].ID == "" {
			exp.Variants[i].ID = uuid.NewString()
		}
	}

	r.mu.Lock()
	r.experiments[exp.ID] = exp
	r.exposures[exp.ID] = make(map[string]int64)
	r.conversions[exp.ID] = make(map[string]int64)
	r.assignments[exp.ID] = make(map[string]string)
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"experiment_id": exp.ID,
		"variants":      len(exp.Variants),
	}).Info("experiment created")
	return cloneExperiment(exp), nil
}

// Get 返回实验快照；不存在时返回 NOT_FOUND。
func (r *Registry) Get(ctx context.Context, expID string) (*Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exp, ok := r.experiments[expID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleExperiment, core.ErrorCodeNotFound, "experiment: "+expID+" not found")
	}
	return cloneExperiment(exp), nil
}

// Start 启动实验：draft → running。
func (r *Registry) Start(ctx context.Context, expID string) error {
	return r.transition(expID, StateRunning, map[State]bool{StateDraft: true, StatePaused: true})
}

// Pause 暂停实验：running → paused。
func (r *Registry) Pause(ctx context.Context, expID string) error {
	return r.transition(expID, StatePaused, map[State]bool{StateRunning: true})
}

// Complete 结束实验：running/paused → completed。终态。
func (r *Registry) Complete(ctx context.Context, expID string) error {
	return r.transition(expID, StateCompleted, map[State]bool{StateRunning: true, StatePaused: true})
}

func (r *Registry) transition(expID string, to State, validFrom map[State]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.experiments[expID]
	if !ok {
		return core.NewDomainError(core.ModuleExperiment, core.ErrorCodeNotFound, "experiment: "+expID+" not found")
	}
	if !validFrom[exp.State] {
		return core.NewDomainError(core.ModuleExperiment, core.ErrorCodeInvalidState,
			fmt.Sprintf("experiment: cannot move %s from %s to %s", expID, exp.State, to))
	}
	exp.State = to
	switch to {
	case StateRunning:
		if exp.StartedAt.IsZero() {
			exp.StartedAt = r.now()
		}
	case StateCompleted:
		exp.EndedAt = r.now()
	}
	return nil
}

// Assign 返回用户所属的分组 ID。
//
// 分流是确定性的：xxhash64(expID:userID) 映射到 [0,1)，
// 落入各分组流量占比的累计边界。同一用户在实验整个生命周期内
// 永远命中同一分组，不需要持久化分配表，也没有外部随机源。
// 实验不在 running 状态时返回空字符串（不分流，不报错）。
func (r *Registry) Assign(ctx context.Context, expID, userID string) (string, error) {
	if userID == "" {
		return "", core.NewDomainError(core.ModuleExperiment, core.ErrorCodeInvalidInput, "experiment: empty user id")
	}

	r.mu.RLock()
	exp, ok := r.experiments[expID]
	if !ok {
		r.mu.RUnlock()
		return "", core.NewDomainError(core.ModuleExperiment, core.ErrorCodeNotFound, "experiment: "+expID+" not found")
	}
	if exp.State != StateRunning {
		r.mu.RUnlock()
		return "", nil
	}
	variantID := bucketVariant(exp, userID)
	r.mu.RUnlock()
	return variantID, nil
}

// bucketVariant 做纯哈希分桶。
func bucketVariant(exp *Experiment, userID string) string {
	h := xxhash.Sum64String(exp.ID + ":" + userID)
	bucket := float64(h) / float64(math.MaxUint64)

	cumulative := 0.0
	for _, v := range exp.Variants {
		cumulative += v.TrafficAllocation
		if bucket < cumulative {
			return v.ID
		}
	}
	// 浮点合计略小于 1 时落到最后一个分组
	return exp.Variants[len(exp.Variants)-1].ID
}

// RecordExposure 记录一次曝光：分流后累计到所属分组。
// 非 running 状态的实验不累计。
func (r *Registry) RecordExposure(ctx context.Context, expID, userID string) (string, error) {
	variantID, err := r.Assign(ctx, expID, userID)
	if err != nil || variantID == "" {
		return "", err
	}
	r.mu.Lock()
	r.exposures[expID][variantID]++
	r.assignments[expID][userID] = variantID
	r.mu.Unlock()
	return variantID, nil
}

// RecordConversion 记录一次转化，归因到该用户曝光时的分组。
// 未曝光过的用户不产生转化计数。
func (r *Registry) RecordConversion(ctx context.Context, expID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experiments[expID]; !ok {
		return core.NewDomainError(core.ModuleExperiment, core.ErrorCodeNotFound, "experiment: "+expID+" not found")
	}
	variantID, ok := r.assignments[expID][userID]
	if !ok {
		return nil
	}
	r.conversions[expID][variantID]++
	return nil
}

// List 返回全部实验的快照。
func (r *Registry) List(ctx context.Context) []*Experiment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Experiment, 0, len(r.experiments))
	for _, exp := range r.experiments {
		out = append(out, cloneExperiment(exp))
	}
	return out
}

func cloneExperiment(exp *Experiment) *Experiment {
	cp := *exp
	cp.Variants = append([]Variant(nil), exp.Variants...)
	if exp.Results != nil {
		res := *exp.Results
		res.Variants = append([]VariantStats(nil), exp.Results.Variants...)
		res.Comparisons = append([]Comparison(nil), exp.Results.Comparisons...)
		cp.Results = &res
	}
	return &cp
}
