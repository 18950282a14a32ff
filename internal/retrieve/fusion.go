package retrieve

import (
	"sort"

	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/keyword"
	"github.com/kiokusearch/kioku/internal/models"
)

// fusedHit carries a candidate record through scoring. vectorScore is the
// raw cosine similarity; keywordScore is max-normalized to [0,1].
type fusedHit struct {
	rec          *models.Record
	score        float64
	vectorScore  float64
	keywordScore float64
}

// fuse merges the vector hits with the keyword results under
// score = (1-w)*cosine + w*keyword and sorts with the same tie rules the
// index uses. Keyword hits that no longer resolve in the index (stale bleve
// entries) or that fail the filter are dropped.
func (e *Engine) fuse(queryVec []float32, hits []index.Hit, kwResults []*keyword.Result, filter *index.Filter, weight float64) []*fusedHit {
	merged := make(map[string]*fusedHit, len(hits)+len(kwResults))
	for _, h := range hits {
		merged[h.Record.ID] = &fusedHit{rec: h.Record, vectorScore: h.Score}
	}

	if weight > 0 {
		for id, ks := range normalizeKeywordScores(kwResults) {
			f, ok := merged[id]
			if !ok {
				rec, exists := e.index.Get(id)
				if !exists || !filter.Matches(rec) {
					continue
				}
				f = &fusedHit{rec: rec, vectorScore: index.CosineSimilarity(queryVec, rec.Embedding)}
				merged[id] = f
			}
			f.keywordScore = ks
		}
	}

	fused := make([]*fusedHit, 0, len(merged))
	for _, f := range merged {
		f.score = (1-weight)*f.vectorScore + weight*f.keywordScore
		fused = append(fused, f)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		ri, rj := fused[i].rec, fused[j].rec
		if !ri.UpdatedAt.Equal(rj.UpdatedAt) {
			return ri.UpdatedAt.After(rj.UpdatedAt)
		}
		return ri.ID < rj.ID
	})
	return fused
}

// normalizeKeywordScores maps ids to scores normalized to [0,1] by the
// maximum. BM25-style scores are only comparable within one result set, so
// normalization happens per query.
func normalizeKeywordScores(results []*keyword.Result) map[string]float64 {
	if len(results) == 0 {
		return nil
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	normalized := make(map[string]float64, len(results))
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}
