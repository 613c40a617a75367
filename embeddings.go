package wxai

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// Embed returns one embedding vector per input.
func (c *Client) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if req == nil {
		return nil, llmerrors.ErrNilRequest
	}
	body := *req
	body.Scope.Fill(c.config.Scope)
	if err := body.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding request: %w", err)
	}
	return doJSON(ctx, c, &call{
		operation: opEmbeddings,
		method:    http.MethodPost,
		path:      "/ml/v1/text/embeddings",
		body:      &body,
		model:     body.ModelID,
	}, func(span trace.Span, resp *EmbeddingResponse) {
		c.recordUsage(span, body.ModelID, resp.InputTokenCount, 0, "")
	})
}

// Rerank scores inputs against a query.
func (c *Client) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	if req == nil {
		return nil, llmerrors.ErrNilRequest
	}
	body := *req
	body.Scope.Fill(c.config.Scope)
	if err := body.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rerank request: %w", err)
	}
	return doJSON(ctx, c, &call{
		operation: opRerank,
		method:    http.MethodPost,
		path:      "/ml/v1/text/rerank",
		body:      &body,
		model:     body.ModelID,
	}, func(span trace.Span, resp *RerankResponse) {
		c.recordUsage(span, body.ModelID, resp.InputTokenCount, 0, "")
	})
}

// Tokenize splits input into the tokens of a model.
func (c *Client) Tokenize(ctx context.Context, req *TokenizeRequest) (*TokenizeResponse, error) {
	if req == nil {
		return nil, llmerrors.ErrNilRequest
	}
	body := *req
	body.Scope.Fill(c.config.Scope)
	if err := body.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tokenize request: %w", err)
	}
	return doJSON[TokenizeResponse](ctx, c, &call{
		operation: opTokenization,
		method:    http.MethodPost,
		path:      "/ml/v1/text/tokenization",
		body:      &body,
		model:     body.ModelID,
	}, nil)
}
