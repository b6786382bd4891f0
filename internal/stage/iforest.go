package stage

import (
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649015329

// isolationForest is a seeded isolation forest over dense rows.
type isolationForest struct {
	trees      []*iNode
	sampleSize int
}

type iNode struct {
	left, right *iNode
	feature     int
	split       float64
	size        int
}

func fitIsolationForest(data [][]float64, trees, sampleSize int, seed int64) *isolationForest {
	rng := rand.New(rand.NewSource(seed))
	n := len(data)
	if sampleSize > n {
		sampleSize = n
	}
	limit := int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))

	f := &isolationForest{trees: make([]*iNode, trees), sampleSize: sampleSize}
	for t := range f.trees {
		idx := rng.Perm(n)[:sampleSize]
		f.trees[t] = buildTree(data, idx, 0, limit, rng)
	}
	return f
}

func buildTree(data [][]float64, idx []int, depth, limit int, rng *rand.Rand) *iNode {
	if depth >= limit || len(idx) <= 1 {
		return &iNode{size: len(idx)}
	}

	// Only features that still vary within this node can split it.
	var splittable []int
	for j := range data[idx[0]] {
		lo, hi := featureRange(data, idx, j)
		if hi > lo {
			splittable = append(splittable, j)
		}
	}
	if len(splittable) == 0 {
		return &iNode{size: len(idx)}
	}

	feature := splittable[rng.Intn(len(splittable))]
	lo, hi := featureRange(data, idx, feature)
	split := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, i := range idx {
		if data[i][feature] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &iNode{
		feature: feature,
		split:   split,
		size:    len(idx),
		left:    buildTree(data, left, depth+1, limit, rng),
		right:   buildTree(data, right, depth+1, limit, rng),
	}
}

func featureRange(data [][]float64, idx []int, j int) (float64, float64) {
	lo, hi := data[idx[0]][j], data[idx[0]][j]
	for _, i := range idx[1:] {
		v := data[i][j]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Score returns the anomaly score of x in (0, 1]; higher is more anomalous.
func (f *isolationForest) Score(x []float64) float64 {
	norm := averagePathLength(f.sampleSize)
	if norm == 0 {
		return 0.5
	}
	var total float64
	for _, t := range f.trees {
		total += pathLength(t, x, 0)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/norm)
}

func pathLength(node *iNode, x []float64, depth int) float64 {
	if node.left == nil {
		return float64(depth) + averagePathLength(node.size)
	}
	if x[node.feature] < node.split {
		return pathLength(node.left, x, depth+1)
	}
	return pathLength(node.right, x, depth+1)
}

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
