package search

import (
	"context"
	"testing"
	"time"

	"github.com/0x00K1/arcp/internal/embeddings"
	"github.com/0x00K1/arcp/internal/registry"
)

// fakeProvider returns a fixed vector keyed by input text prefix, letting
// tests control similarity deterministically without a real embedding
// backend.
type fakeProvider struct {
	vectors map[string][]float64
	dim     int
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{1, 0, 0}, nil
}
func (f *fakeProvider) Dimension() int { return f.dim }

func setupRegistryWithProvider(t *testing.T, provider embeddings.Provider) *registry.Registry {
	t.Helper()
	reg := registry.New(time.Minute, provider, time.Second, nil, nil)
	agents := []struct {
		id, agentType, brief string
		caps                 []string
	}{
		{"sec-1", "security", "vulnerability scanning and detection", []string{"vscan"}},
		{"auto-1", "automation", "schedules recurring jobs", []string{"schedule"}},
		{"mon-1", "monitoring", "watches system health", []string{"healthcheck"}},
	}
	for _, a := range agents {
		reg.Register(context.Background(), registry.Registration{
			AgentID:           a.id,
			Name:              a.id,
			AgentType:         a.agentType,
			Endpoint:          "https://example.test/" + a.id,
			ContextBrief:      a.brief,
			Capabilities:      a.caps,
			CommunicationMode: registry.ModeRemote,
		}, "")
	}
	return reg
}

// TestSearchFiltersByAgentType covers scenario S3.
func TestSearchFiltersByAgentType(t *testing.T) {
	reg := setupRegistryWithProvider(t, nil) // nil -> NullProvider -> lexical fallback
	engine := New(reg, nil)

	results, err := engine.Search(context.Background(), Query{
		Text:          "vulnerability scanning",
		TopK:          5,
		MinSimilarity: 0,
		AgentType:     "security",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Info.AgentType != "security" {
			t.Errorf("result %s has type %s, want security", r.Info.AgentID, r.Info.AgentType)
		}
	}
	if len(results) == 0 {
		t.Fatal("expected at least one security result")
	}
}

// TestSearchSortOrder covers testable property 6: non-increasing
// similarity, ties broken by agent_id ascending.
func TestSearchSortOrder(t *testing.T) {
	reg := setupRegistryWithProvider(t, nil)
	engine := New(reg, nil)

	results, err := engine.Search(context.Background(), Query{Text: "scanning jobs health", TopK: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Fatalf("results not sorted descending at index %d", i)
		}
		if results[i].Similarity == results[i-1].Similarity && results[i].Info.AgentID < results[i-1].Info.AgentID {
			t.Fatalf("tie-break not ascending by agent_id at index %d", i)
		}
	}
}

// TestFallbackRespectsTopKAndMinSimilarity covers testable property 7.
func TestFallbackRespectsTopKAndMinSimilarity(t *testing.T) {
	reg := setupRegistryWithProvider(t, nil)
	engine := New(reg, nil)

	results, err := engine.Search(context.Background(), Query{
		Text:          "scanning",
		TopK:          1,
		MinSimilarity: 0.1,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) > 1 {
		t.Fatalf("len(results) = %d, want <= top_k=1", len(results))
	}
	for _, r := range results {
		if r.Similarity < 0.1 {
			t.Errorf("result %s similarity %f below min_similarity", r.Info.AgentID, r.Similarity)
		}
	}
}

func TestVectorSearchUsesCosineSimilarity(t *testing.T) {
	provider := &fakeProvider{vectors: map[string][]float64{"query text": {1, 0, 0}}, dim: 3}
	reg := registry.New(time.Minute, provider, time.Second, nil, nil)
	reg.Register(context.Background(), registry.Registration{
		AgentID: "a1", Name: "a1", AgentType: "security", Endpoint: "https://x", CommunicationMode: registry.ModeRemote,
	}, "")

	engine := New(reg, provider)
	results, err := engine.Search(context.Background(), Query{Text: "query text", TopK: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("expected near-identical vectors to score ~1.0, got %f", results[0].Similarity)
	}
}

func TestWeightedScoreNeverBelowRawSimilarity(t *testing.T) {
	info := &registry.Info{Metrics: &registry.Metrics{ReputationScore: 1}}
	weighted := weightSimilarity(0.5, info)
	if weighted < 0.5 {
		t.Errorf("weightSimilarity(0.5, rep=1) = %f, must never fall below raw similarity", weighted)
	}
}

func TestEmptyFilterResultsInEmptySearch(t *testing.T) {
	reg := setupRegistryWithProvider(t, nil)
	engine := New(reg, nil)

	results, err := engine.Search(context.Background(), Query{Text: "anything", AgentType: "does-not-exist"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for nonexistent agent_type, got %d", len(results))
	}
}
