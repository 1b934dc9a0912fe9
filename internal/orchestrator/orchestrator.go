package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/collab"
	"github.com/devmesh/retrieval-orchestrator/internal/ess"
	"github.com/devmesh/retrieval-orchestrator/internal/graphstore"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
	"github.com/devmesh/retrieval-orchestrator/internal/tenant"
	"github.com/devmesh/retrieval-orchestrator/internal/vectorstore"
)

// Orchestrator is the Retrieval Orchestrator (C7): a single operation,
// Query, fanning out across enabled backends and synthesizing one answer.
type Orchestrator struct {
	tenants  tenant.Registry
	vectors  vectorstore.Store
	graph    graphstore.Store
	ess      *ess.Client
	embedder collab.Embedder
	logger   obs.Logger
}

func New(tenants tenant.Registry, vectors vectorstore.Store, graph graphstore.Store, essClient *ess.Client, embedder collab.Embedder, logger obs.Logger) *Orchestrator {
	return &Orchestrator{tenants: tenants, vectors: vectors, graph: graph, ess: essClient, embedder: embedder, logger: logger.WithPrefix("orchestrator")}
}

// Query implements spec §4.7's algorithm end to end.
func (o *Orchestrator) Query(ctx context.Context, tenantID, text string, flags Flags) (*SynthesizedAnswer, error) {
	const op = "orchestrator.Query"

	if _, err := o.tenants.RequireActive(ctx, tenantID); err != nil {
		return nil, err
	}

	vecs, err := o.embedder.Embed(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		return nil, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	queryVec := vecs[0]

	results := &fanOutResults{}
	timings := map[string]int64{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	runWithDeadline := func(name string, deadline time.Duration, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			taskCtx := ctx
			var cancel context.CancelFunc
			if deadline > 0 {
				taskCtx, cancel = context.WithTimeout(ctx, deadline)
				defer cancel()
			}
			start := time.Now()
			done := make(chan struct{})
			go func() {
				fn(taskCtx)
				close(done)
			}()
			select {
			case <-done:
				mu.Lock()
				timings[name] = time.Since(start).Milliseconds()
				results.systemsUsed = append(results.systemsUsed, name)
				mu.Unlock()
			case <-taskCtx.Done():
				mu.Lock()
				o.logger.Warn("backend deadline exceeded, dropped from fan-out", map[string]any{"backend": name})
				mu.Unlock()
			}
		}()
	}

	if flags.UseVector {
		runWithDeadline("vector", flags.VectorDeadline, func(ctx context.Context) {
			hits, err := o.vectors.HybridSearch(ctx, tenantID, queryVec, text, flags.TopK, flags.Threshold, flags.VectorWeight)
			if err != nil {
				o.logger.Warn("vector backend failed", map[string]any{"error": err.Error()})
				return
			}
			mu.Lock()
			results.vectorHits = hits
			mu.Unlock()
		})
	}

	if flags.UseGraph {
		runWithDeadline("graph", flags.GraphDeadline, func(ctx context.Context) {
			hits, err := o.graph.Search(ctx, tenantID, text, graphstore.SearchSimilarity, flags.TopK)
			if err != nil {
				o.logger.Warn("graph backend failed", map[string]any{"error": err.Error()})
				return
			}
			mu.Lock()
			results.graphHits = hits
			mu.Unlock()

			if len(hits) > 0 && hits[0].Entity != nil {
				edges, err := o.graph.EntityRelationships(ctx, tenantID, hits[0].Entity.ID, graphstore.DirectionBoth, nil, 3)
				if err == nil {
					mu.Lock()
					results.relations = edges
					mu.Unlock()
				}
			}
		})
	}

	if flags.UseESS && o.ess != nil {
		runWithDeadline("ess", flags.ESSDeadline, func(ctx context.Context) {
			mu.Lock()
			results.fallbackChain = append(results.fallbackChain, "ess_attempted")
			mu.Unlock()

			res := o.ess.Search(ctx, text, flags.ESSDocSetID, flags.ESSMaxRetries)
			mu.Lock()
			if res.Success {
				results.essResult = &res
			} else {
				results.fallbackChain = append(results.fallbackChain, "ess_failed")
			}
			mu.Unlock()

			if !res.Success {
				chat, err := o.ess.SimpleChat(ctx, text)
				if err == nil && chat != "" {
					mu.Lock()
					results.essChat = chat
					results.fallbackChain = append(results.fallbackChain, "ess_simple_chat")
					mu.Unlock()
				}
			}
		})
	}

	wg.Wait()

	answer := synthesize(results)
	answer.Timings = timings
	return answer, nil
}
