package index

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kiokusearch/kioku/internal/models"
)

// Hit pairs a record with its cosine similarity to the query.
type Hit struct {
	Record *models.Record
	Score  float64
}

// Filter restricts a search to records matching any of the source types and
// carrying any of the tags. Empty fields do not restrict.
type Filter struct {
	SourceTypes []models.SourceType
	Tags        []string
}

func (f *Filter) active() bool {
	return f != nil && (len(f.SourceTypes) > 0 || len(f.Tags) > 0)
}

// Matches reports whether a single record satisfies the filter. Used by
// callers that obtain candidates outside the scan, e.g. keyword hits.
func (f *Filter) Matches(rec *models.Record) bool {
	if !f.active() {
		return true
	}
	if len(f.SourceTypes) > 0 {
		ok := false
		for _, src := range f.SourceTypes {
			if rec.Source == src {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Tags) > 0 {
		ok := false
		for _, tag := range f.Tags {
			if rec.Meta.HasTag(tag) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Search returns the k records most similar to query, ranked by cosine
// similarity. The filter is applied during the scan, so k results come back
// even when many records are filtered out. Ties rank by most recent
// UpdatedAt, then by id ascending, making results fully deterministic.
// Fewer than k matches returns all of them; k <= 0 is a caller error.
func (x *Index) Search(query []float32, k int, filter *Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, k)
	}
	if len(query) != x.dims {
		return nil, &DimensionMismatchError{Got: len(query), Want: x.dims}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	queryNorm := vectorNorm(query)

	type scoredSlot struct {
		slot  uint32
		score float64
	}
	var scored []scoredSlot

	score := func(slot uint32) {
		rec := x.records[slot]
		if rec == nil {
			return
		}
		var s float64
		if denom := queryNorm * x.norms[slot]; denom > 0 {
			s = clamp(dot(query, rec.Embedding)/denom, -1, 1)
		}
		scored = append(scored, scoredSlot{slot: slot, score: s})
	}

	if filter.active() {
		candidates := x.candidatesLocked(filter)
		if candidates == nil {
			return nil, nil
		}
		it := candidates.Iterator()
		for it.HasNext() {
			score(it.Next())
		}
	} else {
		for slot := range x.records {
			score(uint32(slot))
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		ri, rj := x.records[scored[i].slot], x.records[scored[j].slot]
		if !ri.UpdatedAt.Equal(rj.UpdatedAt) {
			return ri.UpdatedAt.After(rj.UpdatedAt)
		}
		return ri.ID < rj.ID
	})

	if k > len(scored) {
		k = len(scored)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{Record: x.records[scored[i].slot], Score: scored[i].score}
	}
	return hits, nil
}

// candidatesLocked intersects the filter's posting lists: the union of the
// wanted source types with the union of the wanted tags. A nil return means
// nothing can match.
func (x *Index) candidatesLocked(filter *Filter) *roaring.Bitmap {
	var candidates *roaring.Bitmap

	if len(filter.SourceTypes) > 0 {
		union := roaring.New()
		for _, src := range filter.SourceTypes {
			if bm := x.bySource[src]; bm != nil {
				union.Or(bm)
			}
		}
		if union.IsEmpty() {
			return nil
		}
		candidates = union
	}

	if len(filter.Tags) > 0 {
		union := roaring.New()
		for _, tag := range filter.Tags {
			if bm := x.byTag[tag]; bm != nil {
				union.Or(bm)
			}
		}
		if union.IsEmpty() {
			return nil
		}
		if candidates == nil {
			candidates = union
		} else {
			candidates.And(union)
			if candidates.IsEmpty() {
				return nil
			}
		}
	}

	return candidates
}
