package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
)

// bedrockRuntimeClient is the subset of *bedrockruntime.Client this package
// calls; mockable in tests without a live AWS connection.
type bedrockRuntimeClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEmbedder implements Embedder against AWS Bedrock's Titan text
// embedding model. One InvokeModel call per input text: Titan does not
// batch embedding requests.
type BedrockEmbedder struct {
	client  bedrockRuntimeClient
	modelID string
	dim     int
}

// NewBedrockEmbedder constructs a BedrockEmbedder for modelID ("" defaults
// to amazon.titan-embed-text-v1, dim 1536).
func NewBedrockEmbedder(client *bedrockruntime.Client, modelID string, dim int) *BedrockEmbedder {
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v1"
	}
	if dim <= 0 {
		dim = 1536
	}
	return &BedrockEmbedder{client: client, modelID: modelID, dim: dim}
}

func (e *BedrockEmbedder) Dimension() int { return e.dim }

// Embed calls InvokeModel once per text; texts is expected to be small
// (C6's coordinator already batches at the chunk level).
func (e *BedrockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "collab.BedrockEmbedder.Embed"
	out := make([][]float32, len(texts))
	for i, text := range texts {
		body, err := json.Marshal(map[string]any{"inputText": text})
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}
		resp, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(e.modelID),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.BackendTransient, op, err)
		}
		var parsed struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return nil, apperr.Wrap(apperr.BackendTransient, op, err)
		}
		if len(parsed.Embedding) != e.dim {
			return nil, apperr.New(apperr.BackendTransient, op, fmt.Errorf("bedrock returned %d-dim embedding, expected %d", len(parsed.Embedding), e.dim), nil)
		}
		out[i] = parsed.Embedding
	}
	return out, nil
}
