package embedding

import (
	"hash/fnv"
	"strings"
)

// Tokenizer produces the fixed-length inputs a BERT-style encoder expects:
// input_ids, attention_mask, and token_type_ids, all of length maxTokens.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsTokenID = 101
	sepTokenID = 102

	defaultVocabSize = 30000
	defaultMaxTokens = 256
)

// HashTokenizer maps whitespace-separated words onto a bounded vocabulary by
// hashing. It needs no vocab file, so local ONNX models work out of the box;
// the cost is hash collisions between rare words, which the embedding quality
// tolerates for retrieval.
type HashTokenizer struct {
	vocabSize uint64
}

// NewHashTokenizer returns a tokenizer over a vocabulary of the given size.
// Non-positive sizes fall back to the BERT-base vocabulary size.
func NewHashTokenizer(vocabSize int) *HashTokenizer {
	if vocabSize <= 0 {
		vocabSize = defaultVocabSize
	}
	return &HashTokenizer{vocabSize: uint64(vocabSize)}
}

// Tokenize lowercases and splits text on whitespace, hashes each word into
// the vocabulary, and pads the result to maxTokens. Words beyond the window
// are dropped; the CLS and SEP markers always fit.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1

	pos := 1
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(hashText(word) % t.vocabSize)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepTokenID
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// hashText returns a stable FNV-1a hash of s. The mock embedder and the hash
// tokenizer both ride on it, so equal text means equal model input across
// runs and processes.
func hashText(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
