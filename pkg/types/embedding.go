package types //nolint:revive // package name is intentional

import (
	"errors"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// EmbeddingRequest is the body of POST /ml/v1/text/embeddings.
type EmbeddingRequest struct {
	ModelID    string               `json:"model_id"`
	Inputs     []string             `json:"inputs"`
	Parameters *EmbeddingParameters `json:"parameters,omitempty"`
	Scope
}

// Validate checks the request.
func (r *EmbeddingRequest) Validate() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	if err := ValidateModelID(r.ModelID); err != nil {
		return err
	}
	if err := r.Scope.validate(); err != nil {
		return err
	}
	if len(r.Inputs) == 0 {
		return llmerrors.ErrMissingInput
	}
	return nil
}

// EmbeddingParameters tune an embedding request.
type EmbeddingParameters struct {
	TruncateInputTokens int                     `json:"truncate_input_tokens,omitempty"`
	ReturnOptions       *EmbeddingReturnOptions `json:"return_options,omitempty"`
}

// EmbeddingReturnOptions selects optional response fields.
type EmbeddingReturnOptions struct {
	InputText bool `json:"input_text,omitempty"`
}

// EmbeddingResponse is the body of an embeddings response.
type EmbeddingResponse struct {
	ModelID         string            `json:"model_id"`
	Results         []EmbeddingResult `json:"results"`
	CreatedAt       string            `json:"created_at,omitempty"`
	InputTokenCount int               `json:"input_token_count"`
}

// Vectors returns the embedding vectors in input order.
func (r *EmbeddingResponse) Vectors() [][]float64 {
	out := make([][]float64, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Embedding
	}
	return out
}

// EmbeddingResult is the embedding of one input.
type EmbeddingResult struct {
	Embedding []float64 `json:"embedding"`
	Input     string    `json:"input,omitempty"`
}

// RerankRequest is the body of POST /ml/v1/text/rerank.
type RerankRequest struct {
	ModelID    string            `json:"model_id"`
	Query      string            `json:"query"`
	Inputs     []RerankInput     `json:"inputs"`
	Parameters *RerankParameters `json:"parameters,omitempty"`
	Scope
}

// Validate checks the request.
func (r *RerankRequest) Validate() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	if err := ValidateModelID(r.ModelID); err != nil {
		return err
	}
	if err := r.Scope.validate(); err != nil {
		return err
	}
	if r.Query == "" {
		return errors.New("query is required")
	}
	if len(r.Inputs) == 0 {
		return llmerrors.ErrMissingInput
	}
	return nil
}

// RerankInput is one passage to score.
type RerankInput struct {
	Text string `json:"text"`
}

// RerankParameters tune a rerank request.
type RerankParameters struct {
	TruncateInputTokens int                  `json:"truncate_input_tokens,omitempty"`
	ReturnOptions       *RerankReturnOptions `json:"return_options,omitempty"`
}

// RerankReturnOptions selects optional response fields.
type RerankReturnOptions struct {
	TopN   int  `json:"top_n,omitempty"`
	Inputs bool `json:"inputs,omitempty"`
	Query  bool `json:"query,omitempty"`
}

// RerankResponse is the body of a rerank response.
type RerankResponse struct {
	ModelID         string         `json:"model_id"`
	Results         []RerankResult `json:"results"`
	CreatedAt       string         `json:"created_at,omitempty"`
	InputTokenCount int            `json:"input_token_count"`
	Query           string         `json:"query,omitempty"`
}

// RerankResult is the score of one input.
type RerankResult struct {
	Index int          `json:"index"`
	Score float64      `json:"score"`
	Input *RerankInput `json:"input,omitempty"`
}

// TokenizeRequest is the body of POST /ml/v1/text/tokenization.
type TokenizeRequest struct {
	ModelID    string              `json:"model_id"`
	Input      string              `json:"input"`
	Parameters *TokenizeParameters `json:"parameters,omitempty"`
	Scope
}

// Validate checks the request.
func (r *TokenizeRequest) Validate() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	if err := ValidateModelID(r.ModelID); err != nil {
		return err
	}
	if err := r.Scope.validate(); err != nil {
		return err
	}
	if r.Input == "" {
		return llmerrors.ErrMissingInput
	}
	return nil
}

// TokenizeParameters tune a tokenization request.
type TokenizeParameters struct {
	ReturnTokens bool `json:"return_tokens,omitempty"`
}

// TokenizeResponse is the body of a tokenization response.
type TokenizeResponse struct {
	ModelID string         `json:"model_id"`
	Result  TokenizeResult `json:"result"`
}

// TokenizeResult holds the token count and, optionally, the tokens.
type TokenizeResult struct {
	TokenCount int      `json:"token_count"`
	Tokens     []string `json:"tokens,omitempty"`
}
