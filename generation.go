package wxai

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
	"github.com/blueberrycongee/wxai/pkg/types"
)

// Operation names used in metrics, spans and circuit breakers.
const (
	opTextGeneration       = "text_generation"
	opTextGenerationStream = "text_generation_stream"
	opChat                 = "chat"
	opChatStream           = "chat_stream"
	opEmbeddings           = "embeddings"
	opRerank               = "rerank"
	opTokenization         = "tokenization"
	opModelSpecs           = "foundation_model_specs"
	opForecast             = "time_series_forecast"
	opExtractionCreate     = "text_extraction_create"
	opExtractionGet        = "text_extraction_get"
	opExtractionDelete     = "text_extraction_delete"
)

const (
	pathTextGeneration       = "/ml/v1/text/generation"
	pathTextGenerationStream = "/ml/v1/text/generation_stream"
)

// GenerateText generates text with a foundation model.
//
// Example:
//
//	resp, err := client.GenerateText(ctx, &wxai.TextGenRequest{
//	    ModelID: "ibm/granite-13b-instruct-v2",
//	    Input:   "Write a haiku about Go.",
//	    Parameters: &wxai.TextGenParameters{MaxNewTokens: 50},
//	})
func (c *Client) GenerateText(ctx context.Context, req *TextGenRequest) (*TextGenResponse, error) {
	body, err := c.prepareTextGen(req)
	if err != nil {
		return nil, err
	}
	return doJSON(ctx, c, &call{
		operation: opTextGeneration,
		method:    http.MethodPost,
		path:      pathTextGeneration,
		body:      body,
		model:     body.ModelID,
	}, c.observeTextGen(body.ModelID))
}

// GenerateTextStream streams generated text. Each event carries the tokens
// generated since the previous one.
func (c *Client) GenerateTextStream(ctx context.Context, req *TextGenRequest) (*Stream[TextGenResponse], error) {
	body, err := c.prepareTextGen(req)
	if err != nil {
		return nil, err
	}
	core, err := openStream(ctx, c, textGenStreamCall(body))
	if err != nil {
		return nil, err
	}
	return newStream(core, c.textGenStreamObserver(core.span, body.ModelID)), nil
}

// GenerateTextRawStream streams the raw data of each event.
func (c *Client) GenerateTextRawStream(ctx context.Context, req *TextGenRequest) (*TextStream, error) {
	body, err := c.prepareTextGen(req)
	if err != nil {
		return nil, err
	}
	core, err := openStream(ctx, c, textGenStreamCall(body))
	if err != nil {
		return nil, err
	}
	return &TextStream{core: core}, nil
}

// prepareTextGen copies req, fills the default scope and validates it.
func (c *Client) prepareTextGen(req *TextGenRequest) (*TextGenRequest, error) {
	if req == nil {
		return nil, llmerrors.ErrNilRequest
	}
	body := *req
	body.Scope.Fill(c.config.Scope)
	if err := body.Validate(); err != nil {
		return nil, fmt.Errorf("invalid text generation request: %w", err)
	}
	return &body, nil
}

func textGenStreamCall(body *TextGenRequest) *call {
	return &call{
		operation: opTextGenerationStream,
		method:    http.MethodPost,
		path:      pathTextGenerationStream,
		body:      body,
		model:     body.ModelID,
		stream:    true,
	}
}

func (c *Client) observeTextGen(model string) func(trace.Span, *TextGenResponse) {
	return func(span trace.Span, resp *TextGenResponse) {
		if len(resp.Results) == 0 {
			return
		}
		r := resp.Results[0]
		c.recordUsage(span, model, r.InputTokenCount, r.GeneratedTokenCount, r.StopReason)
	}
}

// textGenStreamObserver records usage from the event that carries the stop
// reason.
func (c *Client) textGenStreamObserver(span trace.Span, model string) func(*TextGenResponse) {
	return func(resp *TextGenResponse) {
		for _, r := range resp.Results {
			if r.StopReason != "" && r.StopReason != types.StopNotFinished {
				c.recordUsage(span, model, r.InputTokenCount, r.GeneratedTokenCount, r.StopReason)
				return
			}
		}
	}
}
