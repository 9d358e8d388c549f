package builders

import (
	"fmt"
	"time"

	"github.com/recstack/recstack/config"
	"github.com/recstack/recstack/filter"
	"github.com/recstack/recstack/pipeline"
	"github.com/recstack/recstack/pkg/conv"
	"github.com/recstack/recstack/rerank"
)

func init() {
	config.Register("filter", BuildFilterNode)
	config.Register("rerank.diversity", BuildDiversityNode)
	config.Register("rerank.topn", BuildTopNNode)
}

func BuildFilterNode(cfg map[string]interface{}) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}
	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]interface{})
		if !ok {
			continue
		}
		filterType := conv.ConfigGet(filterMap, "type", "")
		switch filterType {
		case "exclude":
			ids := conv.SliceAnyToString(filterMap["item_ids"])
			if ids == nil {
				ids = []string{}
			}
			filters = append(filters, &filter.ExcludeFilter{
				ItemIDs: ids,
				Key:     conv.ConfigGet(filterMap, "key", ""),
			})
		case "quality":
			filters = append(filters, &filter.QualityFilter{
				MinQuality: conv.ConfigGetFloat64(filterMap, "min_quality", 0),
			})
		case "rule":
			expr := conv.ConfigGet(filterMap, "expr", "")
			if expr == "" {
				return nil, fmt.Errorf("rule filter: expr not found")
			}
			rf, err := filter.NewRuleFilter(expr)
			if err != nil {
				return nil, fmt.Errorf("rule filter: %w", err)
			}
			filters = append(filters, rf)
		case "exposed":
			exposed := &filter.ExposedFilter{
				KeyPrefix: conv.ConfigGet(filterMap, "key_prefix", ""),
			}
			if sec := conv.ConfigGetInt64(filterMap, "time_window", 0); sec > 0 {
				exposed.TimeWindow = time.Duration(sec) * time.Second
			}
			filters = append(filters, exposed)
		default:
			return nil, fmt.Errorf("unknown filter type: %s", filterType)
		}
	}
	return &filter.FilterNode{Filters: filters}, nil
}

func BuildDiversityNode(cfg map[string]interface{}) (pipeline.Node, error) {
	labelKey := conv.ConfigGet(cfg, "label_key", "category")
	if labelKey == "" {
		labelKey = "category"
	}
	return &rerank.Diversity{
		Limit:    int(conv.ConfigGetInt64(cfg, "limit", 0)),
		LabelKey: labelKey,
	}, nil
}

func BuildTopNNode(cfg map[string]interface{}) (pipeline.Node, error) {
	return &rerank.TopNNode{
		N:         int(conv.ConfigGetInt64(cfg, "n", 0)),
		SortFirst: conv.ConfigGet(cfg, "sort_first", false),
	}, nil
}
