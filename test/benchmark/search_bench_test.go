// Package benchmark measures the hot paths: the brute-force vector scan and
// the mock embedder used by offline deployments.
package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kiokusearch/kioku/internal/embedding"
	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/models"
)

const benchDimensions = 384

// buildIndex fills an index with n synthetic records spread over the source
// types so filtered scans have posting lists to work with.
func buildIndex(b *testing.B, n int) *index.Index {
	b.Helper()
	idx, err := index.New(benchDimensions)
	if err != nil {
		b.Fatal(err)
	}
	now := time.Now().UTC()
	sources := []models.SourceType{
		models.SourceDocument, models.SourceWeb, models.SourceRepoCode, models.SourceNote,
	}
	recs := make([]*models.Record, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, benchDimensions)
		for j := 0; j < 4; j++ {
			vec[(i+j)%benchDimensions] = float32(i%97)/97 + 0.01
		}
		recs[i] = &models.Record{
			ID:        fmt.Sprintf("rec-%06d", i),
			Source:    sources[i%len(sources)],
			Content:   fmt.Sprintf("synthetic record %d", i),
			Embedding: vec,
			Meta: models.Metadata{
				Title:      fmt.Sprintf("record %d", i),
				SourcePath: fmt.Sprintf("/bench/doc-%04d", i/4),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	if err := idx.InsertBatch(recs); err != nil {
		b.Fatal(err)
	}
	return idx
}

func benchQuery() []float32 {
	vec := make([]float32, benchDimensions)
	vec[0] = 1
	vec[7] = 0.5
	return vec
}

func BenchmarkIndexSearch10k(b *testing.B) {
	idx := buildIndex(b, 10000)
	query := benchQuery()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Search(query, 10, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkIndexSearchFiltered10k(b *testing.B) {
	idx := buildIndex(b, 10000)
	query := benchQuery()
	filter := &index.Filter{SourceTypes: []models.SourceType{models.SourceRepoCode}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.Search(query, 10, filter); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkIndexReplaceSourcePath(b *testing.B) {
	idx := buildIndex(b, 10000)
	now := time.Now().UTC()
	recs := make([]*models.Record, 4)
	for i := range recs {
		vec := make([]float32, benchDimensions)
		vec[i] = 1
		recs[i] = &models.Record{
			ID:        fmt.Sprintf("replace-%d", i),
			Source:    models.SourceDocument,
			Content:   "replacement chunk",
			Embedding: vec,
			Meta:      models.Metadata{Title: "replacement", SourcePath: "/bench/doc-0001"},
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := idx.ReplaceSourcePath("/bench/doc-0001", recs); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMockEmbedderEmbed(b *testing.B) {
	e := embedding.NewMockEmbedder(benchDimensions)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Embed(ctx, "benchmark query text for embedding"); err != nil {
			b.Fatal(err)
		}
	}
}
