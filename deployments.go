package wxai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

const (
	opDeploymentTextGeneration       = "deployment_text_generation"
	opDeploymentTextGenerationStream = "deployment_text_generation_stream"
	opDeploymentChat                 = "deployment_chat"
	opDeploymentChatStream           = "deployment_chat_stream"
)

// DeploymentGenerateText generates text with a deployed prompt template or
// tuned model. The deployment fixes the model and the space, so req
// carries neither.
func (c *Client) DeploymentGenerateText(ctx context.Context, deploymentID string, req *TextGenRequest) (*TextGenResponse, error) {
	body, err := prepareDeploymentTextGen(deploymentID, req)
	if err != nil {
		return nil, err
	}
	return doJSON(ctx, c, &call{
		operation:    opDeploymentTextGeneration,
		method:       http.MethodPost,
		path:         deploymentPath(deploymentID, "/text/generation"),
		body:         body,
		deploymentID: deploymentID,
	}, c.observeTextGen("deployment/"+deploymentID))
}

// DeploymentGenerateTextStream streams text generated by a deployment.
func (c *Client) DeploymentGenerateTextStream(ctx context.Context, deploymentID string, req *TextGenRequest) (*Stream[TextGenResponse], error) {
	body, err := prepareDeploymentTextGen(deploymentID, req)
	if err != nil {
		return nil, err
	}
	core, err := openStream(ctx, c, &call{
		operation:    opDeploymentTextGenerationStream,
		method:       http.MethodPost,
		path:         deploymentPath(deploymentID, "/text/generation_stream"),
		body:         body,
		deploymentID: deploymentID,
		stream:       true,
	})
	if err != nil {
		return nil, err
	}
	return newStream(core, c.textGenStreamObserver(core.span, "deployment/"+deploymentID)), nil
}

// DeploymentChat sends a conversation to a deployed chat model.
func (c *Client) DeploymentChat(ctx context.Context, deploymentID string, req *ChatRequest) (*ChatResponse, error) {
	body, err := prepareDeploymentChat(deploymentID, req)
	if err != nil {
		return nil, err
	}
	return doJSON(ctx, c, &call{
		operation:    opDeploymentChat,
		method:       http.MethodPost,
		path:         deploymentPath(deploymentID, "/text/chat"),
		body:         body,
		deploymentID: deploymentID,
	}, c.observeChat("deployment/"+deploymentID))
}

// DeploymentChatStream streams a chat completion from a deployment.
func (c *Client) DeploymentChatStream(ctx context.Context, deploymentID string, req *ChatRequest) (*Stream[ChatStreamResponse], error) {
	body, err := prepareDeploymentChat(deploymentID, req)
	if err != nil {
		return nil, err
	}
	core, err := openStream(ctx, c, &call{
		operation:    opDeploymentChatStream,
		method:       http.MethodPost,
		path:         deploymentPath(deploymentID, "/text/chat_stream"),
		body:         body,
		deploymentID: deploymentID,
		stream:       true,
	})
	if err != nil {
		return nil, err
	}
	return newStream(core, c.chatStreamObserver(core.span, "deployment/"+deploymentID)), nil
}

func validateDeploymentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return llmerrors.ErrMissingDeployment
	}
	return nil
}

func prepareDeploymentTextGen(deploymentID string, req *TextGenRequest) (*TextGenRequest, error) {
	if err := validateDeploymentID(deploymentID); err != nil {
		return nil, err
	}
	if err := req.ValidateDeployment(); err != nil {
		return nil, fmt.Errorf("invalid deployment text generation request: %w", err)
	}
	return req, nil
}

func prepareDeploymentChat(deploymentID string, req *ChatRequest) (*ChatRequest, error) {
	if err := validateDeploymentID(deploymentID); err != nil {
		return nil, err
	}
	if err := req.ValidateDeployment(); err != nil {
		return nil, fmt.Errorf("invalid deployment chat request: %w", err)
	}
	return req, nil
}
