// Package wxai is a Go client for the IBM watsonx.ai REST API.
//
// It covers text generation, chat, deployments, embeddings, reranking,
// tokenization, foundation model specs, time series forecasting and text
// extraction. Streaming endpoints return typed Server-Sent Event streams
// that can be aborted from any goroutine.
//
// Basic usage:
//
//	client, err := wxai.New(
//	    wxai.WithAPIKey(os.Getenv("WATSONX_APIKEY")),
//	    wxai.WithProjectID(os.Getenv("WATSONX_PROJECT_ID")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	stream, err := client.ChatStream(ctx, &wxai.ChatRequest{
//	    ModelID:  "ibm/granite-3-8b-instruct",
//	    Messages: []wxai.ChatMessage{wxai.TextMessage(wxai.RoleUser, "Hello!")},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Close()
//
//	for ev, err := range stream.All() {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Print(ev.Data.Delta())
//	}
package wxai

import (
	"github.com/blueberrycongee/wxai/pkg/cache"
	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
	"github.com/blueberrycongee/wxai/pkg/types"
)

// Version is the current version of the client.
const Version = "0.4.0"

// Service defaults.
const (
	DefaultBaseURL    = "https://us-south.ml.cloud.ibm.com"
	DefaultAPIVersion = "2024-05-01"
)

// Re-export request/response types for convenience.
// Users can write wxai.ChatRequest instead of types.ChatRequest.
type (
	// Scope is the project or space a request is billed to.
	Scope = types.Scope

	// TextGenRequest is a text generation request.
	TextGenRequest = types.TextGenRequest

	// TextGenParameters are text generation parameters.
	TextGenParameters = types.TextGenParameters

	// TextGenResponse is a text generation response or stream event.
	TextGenResponse = types.TextGenResponse

	// ChatRequest is a chat request.
	ChatRequest = types.ChatRequest

	// ChatMessage is a single conversation message.
	ChatMessage = types.ChatMessage

	// ChatResponse is a non-streaming chat response.
	ChatResponse = types.ChatResponse

	// ChatStreamResponse is the payload of one chat stream event.
	ChatStreamResponse = types.ChatStreamResponse

	// Usage reports token accounting.
	Usage = types.Usage
)

// Embedding, rerank and tokenization types.
type (
	EmbeddingRequest  = types.EmbeddingRequest
	EmbeddingResponse = types.EmbeddingResponse
	RerankRequest     = types.RerankRequest
	RerankResponse    = types.RerankResponse
	TokenizeRequest   = types.TokenizeRequest
	TokenizeResponse  = types.TokenizeResponse
)

// Model catalog, forecasting and extraction types.
type (
	FoundationModelsQuery  = types.FoundationModelsQuery
	FoundationModels       = types.FoundationModels
	FoundationModel        = types.FoundationModel
	ForecastRequest        = types.ForecastRequest
	ForecastResponse       = types.ForecastResponse
	TextExtractionRequest  = types.TextExtractionRequest
	TextExtractionResource = types.TextExtractionResource
	DataReference          = types.DataReference
)

// Cache is the cache interface accepted by WithCache.
type Cache = cache.Cache

// APIError is the error returned for non-2xx responses.
type APIError = llmerrors.APIError

// Message roles.
const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
	RoleTool      = types.RoleTool
)

// TextMessage builds a plain text chat message.
func TextMessage(role, text string) ChatMessage {
	return types.TextMessage(role, text)
}
