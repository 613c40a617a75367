package types //nolint:revive // package name is intentional

import (
	"strings"

	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// Decoding methods accepted by TextGenParameters.DecodingMethod.
const (
	DecodingGreedy = "greedy"
	DecodingSample = "sample"
)

// Stop reasons reported in TextGenResult.StopReason.
const (
	StopNotFinished   = "not_finished"
	StopMaxTokens     = "max_tokens"
	StopEOSToken      = "eos_token"
	StopCancelled     = "cancelled"
	StopTimeLimit     = "time_limit"
	StopStopSequence  = "stop_sequence"
	StopTokenLimit    = "token_limit"
	StopErrorOccurred = "error"
)

// TextGenRequest is the body of POST /ml/v1/text/generation and its
// streaming variant. For deployment endpoints ModelID and Scope are left
// empty.
type TextGenRequest struct {
	Input       string             `json:"input"`
	ModelID     string             `json:"model_id,omitempty"`
	Parameters  *TextGenParameters `json:"parameters,omitempty"`
	Moderations *Moderations       `json:"moderations,omitempty"`
	Scope

	// Extra holds parameters that are sent unchanged. Known fields win.
	Extra map[string]json.RawMessage `json:"-"`
}

var textGenRequestKnownFields = map[string]struct{}{
	"input":       {},
	"model_id":    {},
	"parameters":  {},
	"moderations": {},
	"project_id":  {},
	"space_id":    {},
}

// MarshalJSON merges Extra fields without overriding explicitly set fields.
func (r TextGenRequest) MarshalJSON() ([]byte, error) {
	type Alias TextGenRequest
	return mergeExtra(Alias(r), r.Extra)
}

// UnmarshalJSON captures unknown fields into Extra.
func (r *TextGenRequest) UnmarshalJSON(data []byte) error {
	type Alias TextGenRequest
	var parsed Alias
	extra, err := splitExtra(data, &parsed, textGenRequestKnownFields)
	if err != nil {
		return err
	}
	*r = TextGenRequest(parsed)
	r.Extra = extra
	return nil
}

// Validate checks a foundation-model generation request.
func (r *TextGenRequest) Validate() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	if err := ValidateModelID(r.ModelID); err != nil {
		return err
	}
	if err := r.Scope.validate(); err != nil {
		return err
	}
	return r.validateInput()
}

// ValidateDeployment checks a request aimed at a deployment, which carries
// neither a model nor a scope.
func (r *TextGenRequest) ValidateDeployment() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	return r.validateInput()
}

func (r *TextGenRequest) validateInput() error {
	if strings.TrimSpace(r.Input) == "" {
		return llmerrors.ErrMissingInput
	}
	return nil
}

// TextGenParameters are the generation parameters of a text request.
type TextGenParameters struct {
	DecodingMethod      string                `json:"decoding_method,omitempty"`
	LengthPenalty       *LengthPenalty        `json:"length_penalty,omitempty"`
	MaxNewTokens        int                   `json:"max_new_tokens,omitempty"`
	MinNewTokens        int                   `json:"min_new_tokens,omitempty"`
	RandomSeed          *int                  `json:"random_seed,omitempty"`
	StopSequences       []string              `json:"stop_sequences,omitempty"`
	Temperature         *float64              `json:"temperature,omitempty"`
	TimeLimit           int                   `json:"time_limit,omitempty"`
	TopK                int                   `json:"top_k,omitempty"`
	TopP                *float64              `json:"top_p,omitempty"`
	RepetitionPenalty   *float64              `json:"repetition_penalty,omitempty"`
	TruncateInputTokens int                   `json:"truncate_input_tokens,omitempty"`
	ReturnOptions       *TextGenReturnOptions `json:"return_options,omitempty"`
	IncludeStopSequence *bool                 `json:"include_stop_sequence,omitempty"`
}

// LengthPenalty raises the chance of an end-of-sequence token after
// StartIndex tokens.
type LengthPenalty struct {
	DecayFactor float64 `json:"decay_factor,omitempty"`
	StartIndex  int     `json:"start_index,omitempty"`
}

// TextGenReturnOptions selects optional fields of the response.
type TextGenReturnOptions struct {
	InputText       bool `json:"input_text,omitempty"`
	GeneratedTokens bool `json:"generated_tokens,omitempty"`
	InputTokens     bool `json:"input_tokens,omitempty"`
	TokenLogprobs   bool `json:"token_logprobs,omitempty"`
	TokenRanks      bool `json:"token_ranks,omitempty"`
	TopNTokens      int  `json:"top_n_tokens,omitempty"`
}

// Moderations configures HAP and PII filters. The contents are passed
// through unchanged.
type Moderations struct {
	HAP         json.RawMessage `json:"hap,omitempty"`
	PII         json.RawMessage `json:"pii,omitempty"`
	InputRanges json.RawMessage `json:"input_ranges,omitempty"`
}

// TextGenResponse is the body of a generation response and of every event
// of a generation stream.
type TextGenResponse struct {
	ModelID      string          `json:"model_id"`
	ModelVersion string          `json:"model_version,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	Results      []TextGenResult `json:"results"`
	System       *SystemDetails  `json:"system,omitempty"`
}

// Text returns the generated text of the first result.
func (r *TextGenResponse) Text() string {
	if r == nil || len(r.Results) == 0 {
		return ""
	}
	return r.Results[0].GeneratedText
}

// TextGenResult is one generated sequence.
type TextGenResult struct {
	GeneratedText       string          `json:"generated_text"`
	GeneratedTokenCount int             `json:"generated_token_count,omitempty"`
	InputTokenCount     int             `json:"input_token_count,omitempty"`
	StopReason          string          `json:"stop_reason"`
	Seed                int64           `json:"seed,omitempty"`
	GeneratedTokens     []TokenInfo     `json:"generated_tokens,omitempty"`
	InputTokens         []TokenInfo     `json:"input_tokens,omitempty"`
	Moderations         json.RawMessage `json:"moderations,omitempty"`
}

// TokenInfo describes a single token when return options ask for it.
type TokenInfo struct {
	Text      string      `json:"text"`
	Logprob   float64     `json:"logprob,omitempty"`
	Rank      int         `json:"rank,omitempty"`
	TopTokens []TokenInfo `json:"top_tokens,omitempty"`
}

// SystemDetails carries service warnings attached to a response.
type SystemDetails struct {
	Warnings []Warning `json:"warnings,omitempty"`
}

// Warning is a single service warning.
type Warning struct {
	ID       string `json:"id,omitempty"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info,omitempty"`
}
