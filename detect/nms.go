package detect

import (
	"sort"

	"github.com/getcharzp/go-platemask/geometry"
)

// NMS 按置信度降序贪心抑制，IoU 严格大于 threshold 的低分候选被移除
//
// 置信度相同的候选保持输入顺序；不修改入参。
func NMS(dets []Detection, threshold float64) []Detection {
	if len(dets) == 0 {
		return nil
	}

	boxes := make([]Detection, len(dets))
	copy(boxes, dets)
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	var result []Detection
	for len(boxes) > 0 {
		current := boxes[0]
		result = append(result, current)
		boxes = boxes[1:]

		cb := current.Box()
		var remaining []Detection
		for _, b := range boxes {
			if geometry.IoU(cb, b.Box()) <= threshold {
				remaining = append(remaining, b)
			}
		}
		boxes = remaining
	}
	return result
}
