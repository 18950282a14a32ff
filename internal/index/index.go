// Package index holds every record and its embedding in memory and answers
// brute-force cosine-similarity queries with metadata filtering. It is the
// fast, volatile half of the store; durability belongs to the persistence
// layer.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kiokusearch/kioku/internal/models"
)

// ErrInvalidK is returned when a search asks for a non-positive result count.
var ErrInvalidK = errors.New("k must be positive")

// DimensionMismatchError reports an embedding whose length does not match
// the index. This is a configuration fault, not a per-record condition.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding has %d dimensions, index expects %d", e.Got, e.Want)
}

// Index is a slot-addressed in-memory vector index. Records occupy stable
// uint32 slots referenced by roaring posting lists per source type, tag,
// source path, and repository URL. All methods are safe for concurrent use.
//
// Records are owned by the index once inserted and must not be mutated by
// callers afterwards.
type Index struct {
	mu   sync.RWMutex
	dims int

	records []*models.Record // nil marks a free slot
	norms   []float64        // embedding L2 norm per slot
	free    []uint32

	byID     map[string]uint32
	bySource map[models.SourceType]*roaring.Bitmap
	byTag    map[string]*roaring.Bitmap
	byPath   map[string]*roaring.Bitmap
	byRepo   map[string]*roaring.Bitmap
}

// New creates an empty index for embeddings of the given dimension.
func New(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &Index{
		dims:     dimensions,
		byID:     make(map[string]uint32),
		bySource: make(map[models.SourceType]*roaring.Bitmap),
		byTag:    make(map[string]*roaring.Bitmap),
		byPath:   make(map[string]*roaring.Bitmap),
		byRepo:   make(map[string]*roaring.Bitmap),
	}, nil
}

// Dimensions returns the embedding dimension the index was created with.
func (x *Index) Dimensions() int { return x.dims }

// Insert adds rec, overwriting in place when the id already exists.
func (x *Index) Insert(rec *models.Record) error {
	if err := x.checkDims(rec); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.upsertLocked(rec)
	return nil
}

// InsertBatch adds records under a single lock. Dimensions are validated up
// front so a mismatch inserts nothing.
func (x *Index) InsertBatch(recs []*models.Record) error {
	for _, rec := range recs {
		if err := x.checkDims(rec); err != nil {
			return err
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, rec := range recs {
		x.upsertLocked(rec)
	}
	return nil
}

// Delete removes the record with the given id and reports whether it
// existed.
func (x *Index) Delete(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.deleteLocked(id)
}

// DeleteBySourcePath removes every record from the given source path and
// returns the removed ids.
func (x *Index) DeleteBySourcePath(path string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.deleteByPostingLocked(x.byPath[path])
}

// DeleteByRepoURL removes every record whose repository URL matches and
// returns the removed ids.
func (x *Index) DeleteByRepoURL(repoURL string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.deleteByPostingLocked(x.byRepo[repoURL])
}

// ReplaceSourcePath atomically removes the records at path and inserts recs
// in their place. Searches see either the old set or the new set, never a
// mix. Returns the ids of the old set.
func (x *Index) ReplaceSourcePath(path string, recs []*models.Record) ([]string, error) {
	for _, rec := range recs {
		if err := x.checkDims(rec); err != nil {
			return nil, err
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	removed := x.deleteByPostingLocked(x.byPath[path])
	for _, rec := range recs {
		x.upsertLocked(rec)
	}
	return removed, nil
}

// Get returns the record with the given id. The returned record is shared;
// callers must treat it as read-only.
func (x *Index) Get(id string) (*models.Record, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	slot, ok := x.byID[id]
	if !ok {
		return nil, false
	}
	return x.records[slot], true
}

// BySourcePath returns the records ingested from the given source path,
// ordered by chunk index. Records are shared; callers must treat them as
// read-only.
func (x *Index) BySourcePath(path string) []*models.Record {
	x.mu.RLock()
	defer x.mu.RUnlock()
	bm := x.byPath[path]
	if bm == nil || bm.IsEmpty() {
		return nil
	}
	recs := make([]*models.Record, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if rec := x.records[it.Next()]; rec != nil {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Meta.ChunkIndex < recs[j].Meta.ChunkIndex
	})
	return recs
}

// Count returns the number of records in the index.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

// CountBySource returns record counts per source type.
func (x *Index) CountBySource() map[models.SourceType]int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	counts := make(map[models.SourceType]int, len(x.bySource))
	for src, bm := range x.bySource {
		if n := int(bm.GetCardinality()); n > 0 {
			counts[src] = n
		}
	}
	return counts
}

func (x *Index) checkDims(rec *models.Record) error {
	if len(rec.Embedding) != x.dims {
		return &DimensionMismatchError{Got: len(rec.Embedding), Want: x.dims}
	}
	return nil
}

func (x *Index) upsertLocked(rec *models.Record) {
	if slot, ok := x.byID[rec.ID]; ok {
		x.unpostLocked(slot, x.records[slot])
		x.records[slot] = rec
		x.norms[slot] = vectorNorm(rec.Embedding)
		x.postLocked(slot, rec)
		return
	}

	var slot uint32
	if n := len(x.free); n > 0 {
		slot = x.free[n-1]
		x.free = x.free[:n-1]
	} else {
		slot = uint32(len(x.records))
		x.records = append(x.records, nil)
		x.norms = append(x.norms, 0)
	}
	x.records[slot] = rec
	x.norms[slot] = vectorNorm(rec.Embedding)
	x.byID[rec.ID] = slot
	x.postLocked(slot, rec)
}

func (x *Index) deleteLocked(id string) bool {
	slot, ok := x.byID[id]
	if !ok {
		return false
	}
	x.unpostLocked(slot, x.records[slot])
	x.records[slot] = nil
	x.norms[slot] = 0
	x.free = append(x.free, slot)
	delete(x.byID, id)
	return true
}

// deleteByPostingLocked removes every slot in bm and returns the removed
// record ids. The bitmap is cloned first because deletion mutates it.
func (x *Index) deleteByPostingLocked(bm *roaring.Bitmap) []string {
	if bm == nil || bm.IsEmpty() {
		return nil
	}
	removed := make([]string, 0, bm.GetCardinality())
	it := bm.Clone().Iterator()
	for it.HasNext() {
		slot := it.Next()
		if rec := x.records[slot]; rec != nil && x.deleteLocked(rec.ID) {
			removed = append(removed, rec.ID)
		}
	}
	return removed
}

func (x *Index) postLocked(slot uint32, rec *models.Record) {
	addPosting(x.bySource, rec.Source, slot)
	for _, tag := range rec.Meta.Tags {
		addPosting(x.byTag, tag, slot)
	}
	if rec.Meta.SourcePath != "" {
		addPosting(x.byPath, rec.Meta.SourcePath, slot)
	}
	if rec.Meta.RepoURL != "" {
		addPosting(x.byRepo, rec.Meta.RepoURL, slot)
	}
}

func (x *Index) unpostLocked(slot uint32, rec *models.Record) {
	dropPosting(x.bySource, rec.Source, slot)
	for _, tag := range rec.Meta.Tags {
		dropPosting(x.byTag, tag, slot)
	}
	if rec.Meta.SourcePath != "" {
		dropPosting(x.byPath, rec.Meta.SourcePath, slot)
	}
	if rec.Meta.RepoURL != "" {
		dropPosting(x.byRepo, rec.Meta.RepoURL, slot)
	}
}

func addPosting[K comparable](postings map[K]*roaring.Bitmap, key K, slot uint32) {
	bm, ok := postings[key]
	if !ok {
		bm = roaring.New()
		postings[key] = bm
	}
	bm.Add(slot)
}

func dropPosting[K comparable](postings map[K]*roaring.Bitmap, key K, slot uint32) {
	bm, ok := postings[key]
	if !ok {
		return
	}
	bm.Remove(slot)
	if bm.IsEmpty() {
		delete(postings, key)
	}
}
