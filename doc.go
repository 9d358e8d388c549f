// Package recstack 是一个内容推荐子系统（Recommendation Stack）。
//
// 设计要点：
// - 画像驱动: profile 维护用户偏好与行为画像，所有策略共享同一份信号
// - 多策略融合: engine 并发执行 content / collaborative / trending / hybrid 并按配额合并
// - 效果闭环: tracker 记录展示与互动，回灌画像、协同矩阵与热度计数
// - 可实验: experiment 提供确定性分桶与双比例 z 检验的 A/B 分析
// - Pipeline 可扩展: 过滤与重排通过 Node 串联，支持配置驱动组装
package recstack

import "github.com/recstack/recstack/pipeline"

// 轻量 facade：便于用户直接 import "recstack" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
