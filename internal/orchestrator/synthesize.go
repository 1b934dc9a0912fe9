package orchestrator

import (
	"fmt"
	"strings"

	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
)

// synthesize implements spec §4.7 steps 4–6: a pure, deterministic
// composition of whatever backends contributed. It never re-ranks across
// backends — it composes in the fixed priority ESS > vector > graph >
// none, preserving each backend's own internal order.
func synthesize(r *fanOutResults) *SynthesizedAnswer {
	var citations []Citation

	essSucceeded := r.essResult != nil && r.essResult.Success && r.essResult.Answer != ""

	var text string
	switch {
	case essSucceeded:
		text = r.essResult.Answer
		for i, doc := range r.essResult.SourceDocs {
			if i >= 5 {
				break
			}
			citations = append(citations, Citation{Kind: "ess", Source: doc.Link, ID: doc.DocumentID, Score: doc.Score})
		}
		if facts := topFacts(r.graphHits, 2); len(facts) > 0 {
			text += "\n\nRelationship Context:\n" + renderFacts(facts)
			citations = append(citations, factCitations(facts)...)
		}
		if evidence := topVectorEvidence(r.vectorHits, 0.7, 2); len(evidence) > 0 {
			text += "\n\nEvidence:\n" + renderEvidence(evidence)
			citations = append(citations, vectorCitations(evidence)...)
		}

	case len(r.vectorHits) > 0:
		top := r.vectorHits[0]
		text = truncateText(top.Content, 500)
		citations = append(citations, vectorCitations([]vectorstore.Hit{top})...)
		r.fallbackChain = append(r.fallbackChain, "vector_primary")
		if facts := topFacts(r.graphHits, 2); len(facts) > 0 {
			text += "\n\nRelationship Context:\n" + renderFacts(facts)
			citations = append(citations, factCitations(facts)...)
			r.fallbackChain = append(r.fallbackChain, "graph_synthesis_added")
		}

	case len(r.graphHits) > 0:
		facts := topFacts(r.graphHits, 3)
		text = "Knowledge graph results:\n" + renderFacts(facts)
		citations = append(citations, factCitations(facts)...)

	default:
		text = "No results were found for this query."
	}

	if r.essChat != "" && !essSucceeded && len(r.vectorHits) == 0 && len(r.graphHits) == 0 {
		text = r.essChat
	}

	return &SynthesizedAnswer{
		Text:          text,
		Citations:     citations,
		SystemsUsed:   r.systemsUsed,
		Confidence:    confidenceFor(r, essSucceeded),
		FallbackChain: r.fallbackChain,
	}
}

// confidenceFor implements the mapping of spec §4.7 step 5.
func confidenceFor(r *fanOutResults, essSucceeded bool) Confidence {
	hasVector := len(r.vectorHits) > 0
	hasGraph := len(r.graphHits) > 0

	switch {
	case essSucceeded && (hasVector || hasGraph):
		return ConfidenceVeryHigh
	case essSucceeded:
		return ConfidenceHigh
	case hasVector:
		return ConfidenceMedium
	case hasGraph:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// topFacts extracts up to n fact-kind graph results, preserving order.
func topFacts(results []graphstore.Result, n int) []graphstore.Result {
	var facts []graphstore.Result
	for _, r := range results {
		if r.Fact == nil {
			continue
		}
		facts = append(facts, r)
		if len(facts) >= n {
			break
		}
	}
	return facts
}

// topVectorEvidence extracts up to n vector hits whose score is at least
// minScore, preserving order (spec §4.7 step 4).
func topVectorEvidence(hits []vectorstore.Hit, minScore float64, n int) []vectorstore.Hit {
	var out []vectorstore.Hit
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		out = append(out, h)
		if len(out) >= n {
			break
		}
	}
	return out
}

func factCitations(facts []graphstore.Result) []Citation {
	out := make([]Citation, 0, len(facts))
	for _, f := range facts {
		out = append(out, Citation{Kind: "graph", Source: f.Fact.Content, ID: f.Fact.ID, Score: f.Score})
	}
	return out
}

func vectorCitations(hits []vectorstore.Hit) []Citation {
	out := make([]Citation, 0, len(hits))
	for _, h := range hits {
		out = append(out, Citation{Kind: "vector", Source: h.DocumentTitle, ID: h.ChunkID.String(), Score: h.Score})
	}
	return out
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func renderFacts(facts []graphstore.Result) string {
	var sb strings.Builder
	for _, f := range facts {
		sb.WriteString("- ")
		sb.WriteString(f.Fact.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderEvidence(hits []vectorstore.Hit) string {
	var sb strings.Builder
	for _, h := range hits {
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", truncateText(h.Content, 200), h.DocumentTitle))
	}
	return strings.TrimRight(sb.String(), "\n")
}
