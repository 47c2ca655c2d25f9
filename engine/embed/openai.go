package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// embeddingsAPI is the slice of the OpenAI client the provider needs.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAI is a Provider backed by the OpenAI embeddings endpoint.
type OpenAI struct {
	client embeddingsAPI
	model  string
	dim    int
}

// NewOpenAI creates an OpenAI embedding provider requesting vectors of the
// given dimensionality.
func NewOpenAI(apiKey, model string, dim int) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
		dim:    dim,
	}
}

// Embed implements Provider.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: openai: %w: %w", ErrUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: openai: %w: empty response", ErrUnavailable)
	}
	vec := resp.Data[0].Embedding
	if len(vec) != o.dim {
		return nil, fmt.Errorf("embed: openai returned %d dims, want %d", len(vec), o.dim)
	}
	return vec, nil
}

// Dimension implements Provider.
func (o *OpenAI) Dimension() int { return o.dim }
