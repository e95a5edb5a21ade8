// Package search implements the Semantic Search Engine (C8): cosine
// similarity over registered agents' embeddings, combined with filter
// predicates and a deterministic lexical fallback when no embedding
// provider or index is available.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/0x00K1/arcp/internal/embeddings"
	"github.com/0x00K1/arcp/internal/registry"
	"github.com/0x00K1/arcp/internal/telemetry"
)

// Query is the input to Search, per spec.md §4.4.
type Query struct {
	Text          string
	TopK          int
	MinSimilarity float64
	AgentType     string
	Capabilities  []string
	Weighted      bool
}

// Result pairs an agent with its computed similarity.
type Result struct {
	Info       *registry.Info
	Similarity float64
}

// Engine evaluates search queries against a live registry snapshot.
type Engine struct {
	reg      *registry.Registry
	provider embeddings.Provider

	defaultTopK          int
	defaultMinSimilarity float64
}

// New constructs an Engine.
func New(reg *registry.Registry, provider embeddings.Provider) *Engine {
	if provider == nil {
		provider = embeddings.NullProvider{}
	}
	return &Engine{reg: reg, provider: provider}
}

// SetDefaults configures the VECTOR_SEARCH_TOP_K/MIN_SIMILARITY fallback
// values Search applies when a caller omits top_k or min_similarity. Unset
// (zero-value) Engines behave exactly as before: no implicit top_k cap.
func (e *Engine) SetDefaults(topK int, minSimilarity float64) {
	e.defaultTopK = topK
	e.defaultMinSimilarity = minSimilarity
}

// Search implements the algorithm in spec.md §4.4 and its Resolved Open
// Question: weighting is applied before the min_similarity filter, i.e.
// min_similarity bounds the post-weight score, not the raw cosine value.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	start := time.Now()
	mode := "vector"
	defer func() {
		telemetry.SearchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	if q.TopK <= 0 {
		q.TopK = e.defaultTopK
	}
	if q.MinSimilarity <= 0 {
		q.MinSimilarity = e.defaultMinSimilarity
	}

	agents, embeds := e.reg.Snapshot()

	candidates := make([]*registry.Info, 0, len(agents))
	for _, info := range agents {
		if q.AgentType != "" && info.AgentType != q.AgentType {
			continue
		}
		if len(q.Capabilities) > 0 && !containsAll(info.Capabilities, q.Capabilities) {
			continue
		}
		candidates = append(candidates, info)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	useVector := len(embeds) > 0 && hasUsableProvider(e.provider)
	var queryVec []float64
	if useVector {
		v, err := e.provider.Embed(ctx, q.Text)
		if err != nil {
			useVector = false
		} else {
			queryVec = v
		}
	}

	var results []Result
	if useVector {
		results = e.vectorScore(candidates, embeds, queryVec, q.Weighted)
	} else {
		mode = "lexical"
		results = lexicalScore(candidates, q.Text)
	}

	filtered := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Similarity >= q.MinSimilarity {
			filtered = append(filtered, r)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Similarity != filtered[j].Similarity {
			return filtered[i].Similarity > filtered[j].Similarity
		}
		return filtered[i].Info.AgentID < filtered[j].Info.AgentID
	})

	topK := q.TopK
	if topK <= 0 || topK > len(filtered) {
		topK = len(filtered)
	}
	return filtered[:topK], nil
}

func hasUsableProvider(p embeddings.Provider) bool {
	_, isNull := p.(embeddings.NullProvider)
	return !isNull
}

func (e *Engine) vectorScore(candidates []*registry.Info, embeds map[string][]float64, queryVec []float64, weighted bool) []Result {
	out := make([]Result, 0, len(candidates))
	for _, info := range candidates {
		vec, ok := embeds[info.AgentID]
		if !ok {
			continue
		}
		sim := cosineSimilarity(queryVec, vec)
		if weighted {
			sim = weightSimilarity(sim, info)
		}
		out = append(out, Result{Info: info, Similarity: sim})
	}
	return out
}

// weightSimilarity multiplies similarity by reputation_score/5, floored
// at the raw similarity so weighting can only ever improve a candidate's
// rank relative to an unweighted search, never suppress it below its
// intrinsic relevance. Monotone in reputation_score by construction.
func weightSimilarity(sim float64, info *registry.Info) float64 {
	if info.Metrics == nil {
		return sim
	}
	factor := info.Metrics.ReputationScore / 5
	weighted := sim * factor
	if weighted < sim {
		return sim
	}
	return weighted
}

func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// lexicalScore ranks candidates deterministically by token overlap
// between the query and name/context_brief/capabilities, normalized to
// [0,1] so min_similarity remains meaningful without an embedding index.
func lexicalScore(candidates []*registry.Info, query string) []Result {
	tokens := tokenize(query)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}

	out := make([]Result, 0, len(candidates))
	for _, info := range candidates {
		haystack := tokenize(info.Name + " " + info.ContextBrief + " " + strings.Join(info.Capabilities, " "))
		if len(haystack) == 0 || len(tokenSet) == 0 {
			out = append(out, Result{Info: info, Similarity: 0})
			continue
		}
		matches := 0
		seen := make(map[string]struct{})
		for _, h := range haystack {
			if _, ok := tokenSet[h]; ok {
				if _, dup := seen[h]; !dup {
					matches++
					seen[h] = struct{}{}
				}
			}
		}
		score := float64(matches) / float64(len(tokenSet))
		out = append(out, Result{Info: info, Similarity: score})
	}
	return out
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
