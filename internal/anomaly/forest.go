package anomaly

import (
	"math"
	"math/rand"
)

// forest is a seeded isolation forest. Records that separate from the bulk
// of the distribution in few random splits get short average path lengths
// and therefore high anomaly scores.
type forest struct {
	trees      []*treeNode
	sampleSize int
}

type treeNode struct {
	feature int
	split   float64
	left    *treeNode
	right   *treeNode
	size    int // leaf only: number of samples that ended here
}

// fitForest builds numTrees isolation trees over X, each on a random
// subsample of sampleSize rows. All randomness comes from rng, so a fixed
// seed reproduces the model exactly.
func fitForest(X [][]float64, numTrees, sampleSize int, rng *rand.Rand) *forest {
	n := len(X)
	if sampleSize > n {
		sampleSize = n
	}

	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(sampleSize), 2))))

	f := &forest{sampleSize: sampleSize}
	for t := 0; t < numTrees; t++ {
		perm := rng.Perm(n)
		sample := make([][]float64, sampleSize)
		for i := 0; i < sampleSize; i++ {
			sample[i] = X[perm[i]]
		}
		f.trees = append(f.trees, buildTree(sample, 0, heightLimit, rng))
	}
	return f
}

func buildTree(sample [][]float64, depth, heightLimit int, rng *rand.Rand) *treeNode {
	if len(sample) <= 1 || depth >= heightLimit {
		return &treeNode{feature: -1, size: len(sample)}
	}

	// Pick a feature that still varies within this partition.
	numFeatures := len(sample[0])
	candidates := make([]int, 0, numFeatures)
	for col := 0; col < numFeatures; col++ {
		lo, hi := columnRange(sample, col)
		if hi > lo {
			candidates = append(candidates, col)
		}
	}
	if len(candidates) == 0 {
		return &treeNode{feature: -1, size: len(sample)}
	}

	feature := candidates[rng.Intn(len(candidates))]
	lo, hi := columnRange(sample, feature)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range sample {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{feature: -1, size: len(sample)}
	}

	return &treeNode{
		feature: feature,
		split:   split,
		left:    buildTree(left, depth+1, heightLimit, rng),
		right:   buildTree(right, depth+1, heightLimit, rng),
	}
}

func columnRange(sample [][]float64, col int) (lo, hi float64) {
	lo, hi = sample[0][col], sample[0][col]
	for _, row := range sample[1:] {
		if row[col] < lo {
			lo = row[col]
		}
		if row[col] > hi {
			hi = row[col]
		}
	}
	return lo, hi
}

// score returns the anomaly score of one row in (0,1), higher = more
// anomalous: 2^(-E[path]/c(sampleSize)) per the isolation forest paper.
func (f *forest) score(row []float64) float64 {
	if len(f.trees) == 0 || f.sampleSize < 2 {
		return 0.5
	}

	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, row, 0)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/avgPathLength(f.sampleSize))
}

func pathLength(node *treeNode, row []float64, depth int) float64 {
	if node.feature < 0 {
		return float64(depth) + avgPathLength(node.size)
	}
	if row[node.feature] < node.split {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n nodes. Normalizes path lengths across partition sizes.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	const eulerGamma = 0.5772156649
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}
