package forecast

import (
	"math"
	rand "math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// CART-style regression trees underpinning the forest and boosting models.
// Splits minimize the weighted sum of squared errors; thresholds are sampled
// from per-feature quantiles rather than every midpoint to keep fitting
// tractable on flattened lookback windows.

const splitCandidates = 16

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

type treeParams struct {
	maxDepth    int
	minSplit    int
	minLeaf     int
	maxFeatures int // 0 means all
}

type regressionTree struct {
	root   *treeNode
	params treeParams
}

func fitTree(rows [][]float64, targets []float64, params treeParams, rng *rand.Rand) *regressionTree {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	t := &regressionTree{params: params}
	t.root = t.build(rows, targets, idx, 0, rng)
	return t
}

func (t *regressionTree) build(rows [][]float64, targets []float64, idx []int, depth int, rng *rand.Rand) *treeNode {
	if len(idx) < t.params.minSplit || depth >= t.params.maxDepth || pureTargets(targets, idx) {
		return &treeNode{leaf: true, value: meanAt(targets, idx)}
	}

	feature, threshold, ok := t.bestSplit(rows, targets, idx, rng)
	if !ok {
		return &treeNode{leaf: true, value: meanAt(targets, idx)}
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if rows[i][feature] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	if len(leftIdx) < t.params.minLeaf || len(rightIdx) < t.params.minLeaf {
		return &treeNode{leaf: true, value: meanAt(targets, idx)}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      t.build(rows, targets, leftIdx, depth+1, rng),
		right:     t.build(rows, targets, rightIdx, depth+1, rng),
	}
}

func (t *regressionTree) bestSplit(rows [][]float64, targets []float64, idx []int, rng *rand.Rand) (int, float64, bool) {
	nFeatures := len(rows[0])
	features := featureSubset(nFeatures, t.params.maxFeatures, rng)

	bestSSE := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0

	vals := make([]float64, len(idx))
	for _, feat := range features {
		for k, i := range idx {
			vals[k] = rows[i][feat]
		}
		for _, threshold := range quantileThresholds(vals) {
			sse, ok := splitSSE(rows, targets, idx, feat, threshold, t.params.minLeaf)
			if ok && sse < bestSSE {
				bestSSE = sse
				bestFeature = feat
				bestThreshold = threshold
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (t *regressionTree) predict(row []float64) float64 {
	node := t.root
	for !node.leaf {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

// quantileThresholds returns up to splitCandidates distinct cut points drawn
// from the sorted feature values.
func quantileThresholds(vals []float64) []float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n < 2 {
		return nil
	}
	out := make([]float64, 0, splitCandidates)
	for k := 1; k <= splitCandidates; k++ {
		pos := k * n / (splitCandidates + 1)
		if pos <= 0 || pos >= n {
			continue
		}
		v := (sorted[pos-1] + sorted[pos]) / 2
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func splitSSE(rows [][]float64, targets []float64, idx []int, feature int, threshold float64, minLeaf int) (float64, bool) {
	var lSum, lSq, rSum, rSq float64
	var lN, rN int
	for _, i := range idx {
		y := targets[i]
		if rows[i][feature] <= threshold {
			lSum += y
			lSq += y * y
			lN++
		} else {
			rSum += y
			rSq += y * y
			rN++
		}
	}
	if lN < minLeaf || rN < minLeaf {
		return 0, false
	}
	lSSE := lSq - lSum*lSum/float64(lN)
	rSSE := rSq - rSum*rSum/float64(rN)
	return lSSE + rSSE, true
}

func featureSubset(nFeatures, maxFeatures int, rng *rand.Rand) []int {
	if maxFeatures <= 0 || maxFeatures >= nFeatures {
		all := make([]int, nFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := rng.Perm(nFeatures)
	return perm[:maxFeatures]
}

func pureTargets(targets []float64, idx []int) bool {
	first := targets[idx[0]]
	for _, i := range idx[1:] {
		if targets[i] != first {
			return false
		}
	}
	return true
}

func meanAt(targets []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += targets[i]
	}
	return sum / float64(len(idx))
}

// randomForest bags bootstrap-sampled trees and averages their outputs.
// Trees fit in parallel; each tree owns a child PCG stream so the forest is
// reproducible regardless of scheduling.
type randomForest struct {
	trees []*regressionTree
}

type forestParams struct {
	nTrees int
	tree   treeParams
	seed   uint64
}

func fitForest(rows [][]float64, targets []float64, params forestParams) *randomForest {
	trees := make([]*regressionTree, params.nTrees)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := 0; t < params.nTrees; t++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(params.seed, uint64(t)))
			bootIdx := make([]int, len(rows))
			bootRows := make([][]float64, len(rows))
			bootTargets := make([]float64, len(rows))
			for i := range bootIdx {
				j := rng.IntN(len(rows))
				bootRows[i] = rows[j]
				bootTargets[i] = targets[j]
			}
			trees[t] = fitTree(bootRows, bootTargets, params.tree, rng)
			return nil
		})
	}
	g.Wait() // no tree returns an error; the group only bounds parallelism

	return &randomForest{trees: trees}
}

func (f *randomForest) predict(row []float64) float64 {
	sum := 0.0
	for _, t := range f.trees {
		sum += t.predict(row)
	}
	return sum / float64(len(f.trees))
}

// gradientBoost fits shallow trees to residuals of a squared-error loss with
// shrinkage and row subsampling.
type gradientBoost struct {
	base         float64
	learningRate float64
	trees        []*regressionTree
}

type boostParams struct {
	nRounds      int
	learningRate float64
	subsample    float64
	tree         treeParams
	seed         uint64
}

func fitBoost(rows [][]float64, targets []float64, params boostParams) *gradientBoost {
	n := len(rows)
	model := &gradientBoost{
		base:         meanOf(targets),
		learningRate: params.learningRate,
		trees:        make([]*regressionTree, 0, params.nRounds),
	}

	preds := make([]float64, n)
	for i := range preds {
		preds[i] = model.base
	}

	rng := rand.New(rand.NewPCG(params.seed, uint64(n)))
	sampleSize := int(params.subsample * float64(n))
	if sampleSize < 1 {
		sampleSize = n
	}

	residuals := make([]float64, n)
	for round := 0; round < params.nRounds; round++ {
		for i := range residuals {
			residuals[i] = targets[i] - preds[i]
		}

		subIdx := rng.Perm(n)[:sampleSize]
		subRows := make([][]float64, sampleSize)
		subResiduals := make([]float64, sampleSize)
		for k, i := range subIdx {
			subRows[k] = rows[i]
			subResiduals[k] = residuals[i]
		}

		tree := fitTree(subRows, subResiduals, params.tree, rng)
		model.trees = append(model.trees, tree)
		for i := range preds {
			preds[i] += params.learningRate * tree.predict(rows[i])
		}
	}
	return model
}

func (g *gradientBoost) predict(row []float64) float64 {
	v := g.base
	for _, t := range g.trees {
		v += g.learningRate * t.predict(row)
	}
	return v
}
