// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"time"

	"github.com/tomtom215/curator/internal/classify"
)

// CoreSetConfig bounds the covering-radius optimizer.
type CoreSetConfig struct {
	// SolveBudget is the nominal time budget per covering solve.
	// Default: 180s. The solve context deadline is SolveBudget scaled by a
	// 1.2 buffer so the optimizer's own budget trips first.
	SolveBudget time.Duration `koanf:"solve_budget"`

	// MaxNodes caps branch-and-bound nodes per solve. Default: 20000.
	MaxNodes int `koanf:"max_nodes"`

	// Epsilon is the radius convergence threshold. Default: 0.01.
	Epsilon float64 `koanf:"epsilon"`

	// MaxRefinements caps binary-search rounds. Default: 8.
	MaxRefinements int `koanf:"max_refinements"`
}

const solveBudgetFactor = 1.2

func (c CoreSetConfig) withDefaults() CoreSetConfig {
	if c.SolveBudget <= 0 {
		c.SolveBudget = 180 * time.Second
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = 20000
	}
	if c.Epsilon <= 0 {
		c.Epsilon = 0.01
	}
	if c.MaxRefinements <= 0 {
		c.MaxRefinements = 8
	}
	return c
}

// CoreSet frames batch selection as facility location: choose new centers
// from the unlabeled pool so that, together with the already-labeled points,
// every point sits within a small radius of some center.
//
// A greedy k-center pass produces the initial batch and an upper bound on
// the covering radius. A binary search then tightens the radius; each
// candidate radius is tested by a bounded branch-and-bound covering solve
// that must place exactly len(labeled)+batch centers. A solve that exhausts
// its time or node budget is treated as infeasible and the search widens
// toward the upper half, so the greedy incumbent is only ever replaced by a
// strictly feasible tighter solution.
//
// Selection is joint, so Score is unsupported.
type CoreSet struct {
	cfg CoreSetConfig
}

// NewCoreSet builds the strategy, applying defaults to zero fields.
func NewCoreSet(cfg CoreSetConfig) *CoreSet {
	return &CoreSet{cfg: cfg.withDefaults()}
}

// Name returns "coreset".
func (*CoreSet) Name() string { return string(KindCoreSet) }

// Score is not available: the selection optimizes the batch as a whole and
// assigns no meaningful per-element value.
func (*CoreSet) Score(context.Context, Request) ([]float64, error) {
	return nil, fmt.Errorf("coreset strategy has no per-element score: %w", classify.ErrUnsupportedOperation)
}

// Select returns the core-set batch.
func (s *CoreSet) Select(ctx context.Context, req Request) ([]classify.Item, error) {
	if err := validateAligned(req); err != nil {
		return nil, err
	}
	pool, err := embeddingsOf(req.Predictions)
	if err != nil {
		return nil, err
	}
	labeled, err := embeddingsOf(req.LabeledPredictions)
	if err != nil {
		return nil, err
	}

	batch := req.BatchSize
	if batch > len(pool) {
		batch = len(pool)
	}
	if batch <= 0 {
		return []classify.Item{}, nil
	}

	incumbent := greedyKCenter(labeled, pool, batch)
	if batch == len(pool) {
		// Every candidate is selected; nothing to optimize.
		return itemsAt(req.Candidates, incumbent), nil
	}

	prob := newCoverProblem(labeled, pool)
	lo, hi := prob.radiusBounds(incumbent)

	for round := 0; round < s.cfg.MaxRefinements && hi-lo > s.cfg.Epsilon; round++ {
		mid := (lo + hi) / 2

		solveCtx, cancel := context.WithTimeout(ctx,
			time.Duration(float64(s.cfg.SolveBudget)*solveBudgetFactor))
		chosen, uncovered, err := prob.solve(solveCtx, batch, mid, s.cfg.MaxNodes)
		cancel()

		switch {
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			// The caller gave up; stop refining and return what we have.
			return itemsAt(req.Candidates, incumbent), nil
		case err != nil:
			// Budget exhausted or no answer at this radius: infeasible,
			// move toward the upper half.
			lo = mid
		case uncovered == 0:
			incumbent = chosen
			hi = mid
		default:
			lo = mid
		}
	}

	return itemsAt(req.Candidates, incumbent), nil
}

// greedyKCenter returns exactly k distinct pool indices via farthest-first
// traversal, maintaining a running minimum-distance vector so each step is
// O(n) instead of recomputing all pairs.
func greedyKCenter(labeled, pool [][]float64, k int) []int {
	minDist := make([]float64, len(pool))
	for i := range minDist {
		minDist[i] = math.Inf(1)
		for _, c := range labeled {
			if d := euclidean(pool[i], c); d < minDist[i] {
				minDist[i] = d
			}
		}
	}

	selected := make([]int, 0, k)
	for len(selected) < k {
		far := -1
		for i, d := range minDist {
			if d < 0 {
				continue // already selected
			}
			if far == -1 || d > minDist[far] {
				far = i
			}
		}
		if far == -1 {
			break
		}
		selected = append(selected, far)
		center := pool[far]
		minDist[far] = -1
		for i, d := range minDist {
			if d < 0 {
				continue
			}
			if nd := euclidean(pool[i], center); nd < d {
				minDist[i] = nd
			}
		}
	}
	return selected
}

// coverProblem holds the distance geometry for the covering solves. Points
// to cover are the labeled set followed by the pool; candidate centers are
// the pool points (labeled points are always centers).
type coverProblem struct {
	numPoints int
	// distToLabeled[p] is point p's distance to its nearest labeled center.
	distToLabeled []float64
	// distToCand[j][p] is point p's distance to pool candidate j.
	distToCand [][]float64
}

func newCoverProblem(labeled, pool [][]float64) *coverProblem {
	points := make([][]float64, 0, len(labeled)+len(pool))
	points = append(points, labeled...)
	points = append(points, pool...)

	distToLabeled := make([]float64, len(points))
	for p, x := range points {
		distToLabeled[p] = math.Inf(1)
		for _, c := range labeled {
			if d := euclidean(x, c); d < distToLabeled[p] {
				distToLabeled[p] = d
			}
		}
	}

	distToCand := make([][]float64, len(pool))
	for j, c := range pool {
		row := make([]float64, len(points))
		for p, x := range points {
			row[p] = euclidean(x, c)
		}
		distToCand[j] = row
	}

	return &coverProblem{
		numPoints:     len(points),
		distToLabeled: distToLabeled,
		distToCand:    distToCand,
	}
}

// radiusBounds derives the binary-search interval from observed distances:
// the smallest positive point-center distance below, the incumbent's actual
// covering radius above.
func (cp *coverProblem) radiusBounds(chosen []int) (lo, hi float64) {
	lo = math.Inf(1)
	for p := 0; p < cp.numPoints; p++ {
		if d := cp.distToLabeled[p]; d > 0 && d < lo {
			lo = d
		}
		for j := range cp.distToCand {
			if d := cp.distToCand[j][p]; d > 0 && d < lo {
				lo = d
			}
		}
	}
	if math.IsInf(lo, 1) {
		lo = 0
	}

	for p := 0; p < cp.numPoints; p++ {
		best := cp.distToLabeled[p]
		for _, j := range chosen {
			if d := cp.distToCand[j][p]; d < best {
				best = d
			}
		}
		if best > hi {
			hi = best
		}
	}
	return lo, hi
}

var errSolveBudget = errors.New("covering solve budget exhausted")

// solve looks for exactly k pool centers minimizing the number of points
// left uncovered at radius delta. It runs a depth-first branch and bound
// over candidates ordered by coverage, pruning with an overlap-ignoring
// optimistic bound, and aborts with errSolveBudget when the node cap or the
// context deadline is hit.
func (cp *coverProblem) solve(ctx context.Context, k int, delta float64, maxNodes int) ([]int, int, error) {
	words := (cp.numPoints + 63) / 64

	base := make([]uint64, words)
	for p := 0; p < cp.numPoints; p++ {
		if cp.distToLabeled[p] <= delta {
			base[p/64] |= 1 << (p % 64)
		}
	}

	type candidate struct {
		index int
		cover []uint64
		size  int
	}
	cands := make([]candidate, len(cp.distToCand))
	for j := range cp.distToCand {
		cover := make([]uint64, words)
		size := 0
		for p := 0; p < cp.numPoints; p++ {
			if cp.distToCand[j][p] <= delta {
				cover[p/64] |= 1 << (p % 64)
				size++
			}
		}
		cands[j] = candidate{index: j, cover: cover, size: size}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].size > cands[b].size })

	// prefix[i] sums the i largest coverage sizes; the optimistic bound for
	// taking t more centers from position pos is prefix[pos+t]-prefix[pos].
	prefix := make([]int, len(cands)+1)
	for i, c := range cands {
		prefix[i+1] = prefix[i] + c.size
	}

	popcount := func(bs []uint64) int {
		n := 0
		for _, w := range bs {
			n += bits.OnesCount64(w)
		}
		return n
	}

	bestUncovered := cp.numPoints + 1
	var bestChosen []int
	nodes := 0

	var dfs func(pos, taken int, covered []uint64, chosen []int) error
	dfs = func(pos, taken int, covered []uint64, chosen []int) error {
		nodes++
		if nodes > maxNodes {
			return errSolveBudget
		}
		if nodes%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if taken == k {
			if u := cp.numPoints - popcount(covered); u < bestUncovered {
				bestUncovered = u
				bestChosen = append([]int(nil), chosen...)
			}
			return nil
		}
		remaining := k - taken
		if len(cands)-pos < remaining {
			return nil
		}

		uncovered := cp.numPoints - popcount(covered)
		gain := prefix[pos+remaining] - prefix[pos]
		if bound := uncovered - gain; bound > 0 && bound >= bestUncovered {
			return nil
		}

		// Take candidate at pos.
		next := make([]uint64, words)
		for w := range next {
			next[w] = covered[w] | cands[pos].cover[w]
		}
		if err := dfs(pos+1, taken+1, next, append(chosen, cands[pos].index)); err != nil {
			return err
		}
		if bestUncovered == 0 {
			return nil // cannot improve further
		}
		// Skip it.
		return dfs(pos+1, taken, covered, chosen)
	}

	if err := dfs(0, 0, base, make([]int, 0, k)); err != nil {
		return nil, 0, err
	}
	if bestChosen == nil {
		return nil, 0, errSolveBudget
	}

	sort.Ints(bestChosen)
	return bestChosen, bestUncovered, nil
}
