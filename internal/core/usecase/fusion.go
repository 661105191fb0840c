package usecase

import (
	"encoding/json"
	"sort"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

const defaultRRFK = 60

// FuseRankings combines ranked lists from independent retrieval calls into
// one ordering using reciprocal rank fusion: each document accumulates
// 1/(rank+k) for every list it appears in, with zero-based ranks. Only rank
// position matters, so lists of different lengths and from different queries
// fuse without score normalization. k dampens top-rank dominance from any
// single list; 60 is the standard default.
func FuseRankings(rankings [][]domain.RetrievedDocument, k int) []domain.ScoredDocument {
	if k <= 0 {
		k = defaultRRFK
	}

	type candidate struct {
		doc   domain.RetrievedDocument
		score float64
	}

	scores := make(map[string]*candidate)
	order := make([]string, 0)

	for _, ranking := range rankings {
		for rank, doc := range ranking {
			key := documentKey(doc)
			cand, seen := scores[key]
			if !seen {
				cand = &candidate{doc: doc}
				scores[key] = cand
				order = append(order, key)
			}
			cand.score += 1.0 / float64(rank+k)
		}
	}

	// Build in first-encounter order so the stable sort keeps ties
	// deterministic across runs.
	out := make([]domain.ScoredDocument, 0, len(order))
	for _, key := range order {
		cand := scores[key]
		out = append(out, domain.ScoredDocument{
			Document: cand.doc,
			Score:    cand.score,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// documentKey is the canonical identity of a document: full content plus all
// metadata. Chunks with identical text but different source metadata must not
// collapse into one entry.
func documentKey(doc domain.RetrievedDocument) string {
	raw, err := json.Marshal(doc)
	if err != nil {
		// Marshal of a plain struct cannot fail; fall back to content.
		return doc.Content
	}
	return string(raw)
}
