package wxai

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

const (
	pathChat       = "/ml/v1/text/chat"
	pathChatStream = "/ml/v1/text/chat_stream"
)

// Chat sends a conversation to a chat model.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := c.prepareChat(req)
	if err != nil {
		return nil, err
	}
	return doJSON(ctx, c, &call{
		operation: opChat,
		method:    http.MethodPost,
		path:      pathChat,
		body:      body,
		model:     body.ModelID,
	}, c.observeChat(body.ModelID))
}

// ChatStream streams a chat completion. Each event carries a content delta;
// the last one usually carries usage.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (*Stream[ChatStreamResponse], error) {
	body, err := c.prepareChat(req)
	if err != nil {
		return nil, err
	}
	core, err := openStream(ctx, c, chatStreamCall(body))
	if err != nil {
		return nil, err
	}
	return newStream(core, c.chatStreamObserver(core.span, body.ModelID)), nil
}

// ChatRawStream streams the raw data of each chat event.
func (c *Client) ChatRawStream(ctx context.Context, req *ChatRequest) (*TextStream, error) {
	body, err := c.prepareChat(req)
	if err != nil {
		return nil, err
	}
	core, err := openStream(ctx, c, chatStreamCall(body))
	if err != nil {
		return nil, err
	}
	return &TextStream{core: core}, nil
}

func (c *Client) prepareChat(req *ChatRequest) (*ChatRequest, error) {
	if req == nil {
		return nil, llmerrors.ErrNilRequest
	}
	body := *req
	body.Scope.Fill(c.config.Scope)
	if err := body.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chat request: %w", err)
	}
	return &body, nil
}

func chatStreamCall(body *ChatRequest) *call {
	return &call{
		operation: opChatStream,
		method:    http.MethodPost,
		path:      pathChatStream,
		body:      body,
		model:     body.ModelID,
		stream:    true,
	}
}

func (c *Client) observeChat(model string) func(trace.Span, *ChatResponse) {
	return func(span trace.Span, resp *ChatResponse) {
		if resp.Usage == nil {
			return
		}
		var finish string
		if len(resp.Choices) > 0 {
			finish = resp.Choices[0].FinishReason
		}
		c.recordUsage(span, model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, finish)
	}
}

func (c *Client) chatStreamObserver(span trace.Span, model string) func(*ChatStreamResponse) {
	return func(resp *ChatStreamResponse) {
		if resp.Usage == nil {
			return
		}
		var finish string
		if len(resp.Choices) > 0 {
			finish = resp.Choices[0].FinishReason
		}
		c.recordUsage(span, model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, finish)
	}
}
