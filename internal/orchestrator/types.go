// Package orchestrator implements the Retrieval Orchestrator (spec §4.7,
// component C7): concurrent fan-out across the vector, graph, and ESS
// adapters, deterministic synthesis, confidence mapping, and citations.
// Grounded on the teacher's pkg/rag/retrieval/hybrid.go weighted
// composition style, generalized to three heterogeneous backends instead
// of one.
package orchestrator

import (
	"time"

	"github.com/devmesh/retrieval-orchestrator/internal/ess"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
)

// Confidence is the synthesis confidence mapping of spec §4.7 step 5.
type Confidence string

const (
	ConfidenceVeryHigh Confidence = "very_high"
	ConfidenceHigh     Confidence = "high"
	ConfidenceMedium   Confidence = "medium"
	ConfidenceLow      Confidence = "low"
	ConfidenceNone     Confidence = "none"
)

// Citation is emitted for every supporting item in the synthesized
// answer (spec §4.7 step 6); the answer never cites what it cannot name.
type Citation struct {
	Kind   string  `json:"kind"` // "vector" | "graph" | "ess"
	Source string  `json:"source"`
	ID     string  `json:"id"`
	Score  float64 `json:"score,omitempty"`
}

// Flags selects which backends participate in a query and their tuning
// parameters (spec §4.7).
type Flags struct {
	UseVector bool
	UseGraph  bool
	UseESS    bool

	TopK         int
	Threshold    float64
	VectorWeight float64

	ESSDocSetID   int
	ESSMaxRetries int

	VectorDeadline time.Duration
	GraphDeadline  time.Duration
	ESSDeadline    time.Duration
}

func DefaultFlags() Flags {
	return Flags{
		UseVector: true, UseGraph: true, UseESS: false,
		TopK: 5, Threshold: 0.5, VectorWeight: 0.6,
		ESSMaxRetries:  3,
		VectorDeadline: 2 * time.Second,
		GraphDeadline:  2 * time.Second,
		ESSDeadline:    15 * time.Second,
	}
}

// fanOutResults is the raw material synthesize() composes from; each
// field is nil/empty when its backend was disabled, timed out, or failed.
type fanOutResults struct {
	vectorHits []vectorstore.Hit
	graphHits  []graphstore.Result
	relations  []graphstore.Edge
	essResult  *ess.SearchResult
	essChat    string

	systemsUsed   []string
	fallbackChain []string
}

// SynthesizedAnswer is the final output of Query (spec §4.7 step 7).
type SynthesizedAnswer struct {
	Text          string            `json:"text"`
	Citations     []Citation        `json:"citations"`
	SystemsUsed   []string          `json:"systems_used"`
	Confidence    Confidence        `json:"confidence"`
	FallbackChain []string          `json:"fallback_chain,omitempty"`
	Timings       map[string]int64  `json:"timings_ms"`
}
