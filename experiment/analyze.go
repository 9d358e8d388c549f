package experiment

import (
	"context"
	"math"
	"time"

	"github.com/recstack/recstack/core"
)

// significanceLevel 是双尾显著性判定阈值。
const significanceLevel = 0.05

// VariantStats 是单个分组的聚合表现。
type VariantStats struct {
	VariantID      string  `json:"variant_id"`
	Name           string  `json:"name"`
	Exposures      int64   `json:"exposures"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Comparison 是对照组与一个实验组的两比例 z 检验结果。
type Comparison struct {
	VariantID string `json:"variant_id"`

	// Lift 是相对对照组转化率的变化幅度
	Lift float64 `json:"lift"`

	ZScore      float64 `json:"z_score"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// Results 是一次按需分析的产出。
type Results struct {
	ExperimentID string         `json:"experiment_id"`
	ControlID    string         `json:"control_id"`
	Variants     []VariantStats `json:"variants"`

	// Comparisons 是对照组对每个实验组的逐对检验
	Comparisons []Comparison `json:"comparisons"`

	// StatisticallySignificant 为 true 表示至少一个实验组与对照组差异显著
	StatisticallySignificant bool `json:"statistically_significant"`

	// WinningVariant 是显著差异存在时转化率最高的分组 ID
	WinningVariant string `json:"winning_variant,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Analyze 按需计算实验结果并挂到实验记录上。
//
// 第一个分组作为对照组，对其余每个分组做两比例 z 检验
// （合并比例、标准误、双尾 p 值），p < 0.05 判定显著。
// 任一实验组显著时标记整体显著，并给出转化率最高的分组。
func (r *Registry) Analyze(ctx context.Context, expID string) (*Results, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.experiments[expID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleExperiment, core.ErrorCodeNotFound, "experiment: "+expID+" not found")
	}

	stats := make([]VariantStats, len(exp.Variants))
	for i, v := range exp.Variants {
		exposures := r.exposures[expID][v.ID]
		conversions := r.conversions[expID][v.ID]
		rate := 0.0
		if exposures > 0 {
			rate = float64(conversions) / float64(exposures)
		}
		stats[i] = VariantStats{
			VariantID:      v.ID,
			Name:           v.Name,
			Exposures:      exposures,
			Conversions:    conversions,
			ConversionRate: rate,
		}
	}

	control := stats[0]
	results := &Results{
		ExperimentID: expID,
		ControlID:    control.VariantID,
		Variants:     stats,
		AnalyzedAt:   r.now(),
	}

	for _, vs := range stats[1:] {
		cmp := compareProportions(control, vs)
		results.Comparisons = append(results.Comparisons, cmp)
		if cmp.Significant {
			results.StatisticallySignificant = true
		}
	}

	if results.StatisticallySignificant {
		best := control
		for _, vs := range stats[1:] {
			if vs.ConversionRate > best.ConversionRate {
				best = vs
			}
		}
		results.WinningVariant = best.VariantID
	}

	exp.Results = results

	cp := *results
	cp.Variants = append([]VariantStats(nil), results.Variants...)
	cp.Comparisons = append([]Comparison(nil), results.Comparisons...)
	return &cp, nil
}

// compareProportions 执行两比例 z 检验。
// 任一侧无曝光或标准误为零时不判显著（p=1）。
func compareProportions(control, variant VariantStats) Comparison {
	cmp := Comparison{VariantID: variant.VariantID, PValue: 1}

	if control.Exposures == 0 || variant.Exposures == 0 {
		return cmp
	}
	n1, n2 := float64(control.Exposures), float64(variant.Exposures)
	p1, p2 := control.ConversionRate, variant.ConversionRate

	pooled := (float64(control.Conversions) + float64(variant.Conversions)) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 {
		return cmp
	}

	cmp.ZScore = (p2 - p1) / se
	cmp.PValue = 2 * (1 - normalCDF(math.Abs(cmp.ZScore)))
	cmp.Significant = cmp.PValue < significanceLevel
	if p1 > 0 {
		cmp.Lift = (p2 - p1) / p1
	}
	return cmp
}

// normalCDF 是标准正态分布函数 Φ(x)。
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
