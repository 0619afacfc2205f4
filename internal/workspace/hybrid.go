package workspace

import (
	"context"
	"sort"
	"sync"
)

// RRFConstant is the k in the reciprocal-rank-fusion score
// sum(1/(k+rank)); 60 keeps single-list outliers from dominating.
const RRFConstant = 60

// DefaultPreFusionLimit caps each retrieval leg's candidate list before
// the lists are fused.
const DefaultPreFusionLimit = 50

// FusedResult is one chunk after rank fusion, scored in [0,1].
type FusedResult struct {
	ChunkID string
	Score   float64
}

// FuseRanks combines ranked ID lists by reciprocal-rank fusion. Each list
// contributes 1/(k+rank) per ID (rank is 1-based); scores are normalized by
// the maximum so the best result is exactly 1. The function is pure:
// identical inputs always produce identical output, and an ID present in
// several lists is intrinsically boosted. Ties break by ID so ordering is
// deterministic.
func FuseRanks(lists [][]string, k int) []FusedResult {
	if k <= 0 {
		k = RRFConstant
	}
	scores := make(map[string]float64)
	for _, list := range lists {
		for i, id := range list {
			scores[id] += 1.0 / float64(k+i+1)
		}
	}
	if len(scores) == 0 {
		return nil
	}
	results := make([]FusedResult, 0, len(scores))
	var max float64
	for id, s := range scores {
		results = append(results, FusedResult{ChunkID: id, Score: s})
		if s > max {
			max = s
		}
	}
	for i := range results {
		results[i].Score /= max
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}

// SearchLeg is one retrieval method returning chunk IDs best-first.
type SearchLeg func(ctx context.Context, limit int) ([]string, error)

// HybridSearch runs the given legs concurrently, truncates each result
// list to preFusionLimit, and fuses the survivors. A leg that errors
// contributes nothing; the search only fails when every leg failed.
func HybridSearch(ctx context.Context, preFusionLimit int, legs ...SearchLeg) ([]FusedResult, error) {
	if preFusionLimit <= 0 {
		preFusionLimit = DefaultPreFusionLimit
	}
	lists := make([][]string, len(legs))
	errs := make([]error, len(legs))
	var wg sync.WaitGroup
	for i, leg := range legs {
		if leg == nil {
			continue
		}
		wg.Add(1)
		go func(i int, leg SearchLeg) {
			defer wg.Done()
			ids, err := leg(ctx, preFusionLimit)
			if err != nil {
				errs[i] = err
				return
			}
			if len(ids) > preFusionLimit {
				ids = ids[:preFusionLimit]
			}
			lists[i] = ids
		}(i, leg)
	}
	wg.Wait()

	var firstErr error
	anyOK := false
	for i, leg := range legs {
		if leg == nil {
			continue
		}
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		anyOK = true
	}
	if !anyOK && firstErr != nil {
		return nil, firstErr
	}
	return FuseRanks(lists, RRFConstant), nil
}
