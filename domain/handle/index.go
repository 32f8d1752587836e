package handle

import (
	"crypto/rand"
	"encoding/json"
	"math/big"

	"github.com/entativa/id/domain/model"
)

// fuzzyHit is a candidate match found during the bucketed fuzzy scan.
type fuzzyHit struct {
	entity     model.ProtectedEntity
	kind       ProtectionKind
	similarity float64
}

type aliasHit struct {
	entity model.ProtectedEntity
}

// registryIndex is the in-memory optimization named in SPEC_FULL.md §4.1:
// entries bucketed by canonical-handle length so the fuzzy scan only visits
// entries close enough in length to possibly clear SimilarityThreshold.
type registryIndex struct {
	entities   []model.ProtectedEntity
	byLength   map[int][]int // length -> indices into entities
	aliasExact map[string]int
}

func buildIndex(entities []model.ProtectedEntity) *registryIndex {
	idx := &registryIndex{
		entities:   entities,
		byLength:   make(map[int][]int),
		aliasExact: make(map[string]int),
	}
	for i, e := range entities {
		idx.byLength[len(e.CanonicalHandle)] = append(idx.byLength[len(e.CanonicalHandle)], i)
		for _, alias := range e.Aliases {
			idx.aliasExact[alias] = i
		}
	}
	return idx
}

func (idx *registryIndex) exactAlias(h string) (aliasHit, bool) {
	if idx == nil {
		return aliasHit{}, false
	}
	i, ok := idx.aliasExact[h]
	if !ok {
		return aliasHit{}, false
	}
	return aliasHit{entity: idx.entities[i]}, true
}

// fuzzyMatch scans every length bucket within maxDelta of len(h), in map
// order (better() makes the visit order irrelevant), applying the tie-break rules of spec.md §4.1: exact > alias-exact > canonical-fuzzy
// > alias-fuzzy; among fuzzy hits, highest sim wins; ties broken by
// model.CategoryRank.
func (idx *registryIndex) fuzzyMatch(h string) (fuzzyHit, bool) {
	if idx == nil {
		return fuzzyHit{}, false
	}
	// floor((1-threshold)*len(h)) + 1, per SPEC_FULL.md §4.1's indexing note:
	// no entry further from len(h) could still clear SimilarityThreshold.
	maxDelta := int((1-SimilarityThreshold)*float64(len(h))) + 1
	var best fuzzyHit
	found := false

	for length, indices := range idx.byLength {
		if abs(length-len(h)) > maxDelta {
			continue
		}
		for _, i := range indices {
			entity := idx.entities[i]
			if sim := similarity(h, entity.CanonicalHandle); sim >= SimilarityThreshold {
				if better(fuzzyHit{entity: entity, kind: ProtectionFuzzy, similarity: sim}, best, found) {
					best = fuzzyHit{entity: entity, kind: ProtectionFuzzy, similarity: sim}
					found = true
				}
			}
			for _, alias := range entity.Aliases {
				if sim := similarity(h, alias); sim >= SimilarityThreshold {
					if better(fuzzyHit{entity: entity, kind: ProtectionAliasFuzzy, similarity: sim}, best, found) {
						best = fuzzyHit{entity: entity, kind: ProtectionAliasFuzzy, similarity: sim}
						found = true
					}
				}
			}
		}
	}
	return best, found
}

// better reports whether candidate should replace current under spec.md
// §4.1's tie-break: canonical-fuzzy beats alias-fuzzy, then highest
// similarity wins, then lowest model.CategoryRank wins.
func better(candidate, current fuzzyHit, currentSet bool) bool {
	if !currentSet {
		return true
	}
	if candidate.kind != current.kind {
		return candidate.kind == ProtectionFuzzy // canonical-fuzzy outranks alias-fuzzy
	}
	if candidate.similarity != current.similarity {
		return candidate.similarity > current.similarity
	}
	return model.CategoryRank(candidate.entity.Category) < model.CategoryRank(current.entity.Category)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// encodeResult/decodeResult serialize Result for the protection cache.
func encodeResult(r Result) (string, bool) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func decodeResult(s string) (Result, bool) {
	var r Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Result{}, false
	}
	return r, true
}

func cryptoRandInt(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
