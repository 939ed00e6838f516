package quality

import (
	"image"

	"github.com/getcharzp/go-platemask/geometry"
)

const (
	minReduction     = 0.8
	maxResidualEdges = 0.02
)

// Completeness 遮挡前后的对比
type Completeness struct {
	Before    Metrics `json:"before"`
	After     Metrics `json:"after"`
	Reduction float64 `json:"reduction"` // 边缘密度下降比例
	Passed    bool    `json:"passed"`
}

// CheckCompleteness 边缘密度下降 80% 以上，或遮挡后边缘密度低于 0.02 视为遮挡完整
func CheckCompleteness(original, masked image.Image, region geometry.Quad, th Thresholds) (Completeness, error) {
	results, err := CheckAllRegions(original, masked, []geometry.Quad{region}, th)
	if err != nil {
		return Completeness{}, err
	}
	return results[0], nil
}

// CheckAllRegions 对每个区域执行 CheckCompleteness
func CheckAllRegions(original, masked image.Image, regions []geometry.Quad, th Thresholds) ([]Completeness, error) {
	before, err := newAnalyzer(original, th)
	if err != nil {
		return nil, err
	}
	after, err := newAnalyzer(masked, th)
	if err != nil {
		return nil, err
	}

	results := make([]Completeness, 0, len(regions))
	for _, region := range regions {
		c := Completeness{Before: before.measure(region), After: after.measure(region), Reduction: 1}
		if c.Before.EdgeDensity > 0 {
			c.Reduction = 1 - c.After.EdgeDensity/c.Before.EdgeDensity
		}
		c.Passed = c.Reduction >= minReduction || c.After.EdgeDensity < maxResidualEdges
		results = append(results, c)
	}
	return results, nil
}

// AllPassed 是否全部通过
func AllPassed(results []Completeness) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
