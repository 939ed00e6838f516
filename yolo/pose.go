package yolo

import "github.com/getcharzp/go-platemask/detect"

// postprocessPose 解析 [1, 5+K*3, N] 的姿态输出
//
// 置信度为检测框分数与前 4 个关键点可见度均值的平均。
func (e *Engine) postprocessPose(output []float32, lb letterbox, conf float64, imgW, imgH int) []detect.CornerHit {
	channels := 5 + e.numKeypoints*3
	n := len(output) / channels
	if n == 0 || e.numKeypoints < 4 {
		return nil
	}

	var candidates []candidate
	for i := 0; i < n; i++ {
		score := output[4*n+i]
		if float64(score) < conf {
			continue
		}
		candidates = append(candidates, candidate{box: decodeBox(output, n, i), score: score, index: i})
	}

	kept := nms(candidates)
	hits := make([]detect.CornerHit, 0, len(kept))
	for _, c := range kept {
		var hit detect.CornerHit
		var kptConf float64
		for k := 0; k < 4; k++ {
			base := 5 + k*3
			x := output[base*n+c.index]
			y := output[(base+1)*n+c.index]
			v := output[(base+2)*n+c.index]
			hit.Corners[k] = lb.toImage(x, y, imgW, imgH)
			kptConf += float64(v)
		}
		hit.Confidence = (float64(c.score) + kptConf/4) / 2
		hits = append(hits, hit)
	}
	return hits
}
