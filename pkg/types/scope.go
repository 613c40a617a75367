// Package types defines the request and response payloads of the watsonx.ai
// REST API. Field names follow the upstream snake_case wire format.
package types //nolint:revive // package name is intentional

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// MaxModelIDLength bounds model identifiers accepted by Validate.
const MaxModelIDLength = 256

// Scope identifies the project or deployment space a request is billed to.
// Exactly one of the two is normally set.
type Scope struct {
	ProjectID string `json:"project_id,omitempty"`
	SpaceID   string `json:"space_id,omitempty"`
}

// IsZero reports whether neither id is set.
func (s Scope) IsZero() bool {
	return s.ProjectID == "" && s.SpaceID == ""
}

// Fill copies def into s when s has no id of its own.
func (s *Scope) Fill(def Scope) {
	if s.IsZero() {
		*s = def
	}
}

func (s Scope) validate() error {
	if s.IsZero() {
		return llmerrors.ErrMissingScope
	}
	return nil
}

// ValidateModelID checks that a model id is present and within bounds.
func ValidateModelID(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return llmerrors.ErrMissingModel
	}
	if len(model) > MaxModelIDLength {
		return fmt.Errorf("model_id is too long (max %d characters)", MaxModelIDLength)
	}
	return nil
}

// mergeExtra marshals v and adds every key of extra that v does not already
// set.
func mergeExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return base, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(base, &payload); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, exists := payload[key]; !exists {
			payload[key] = value
		}
	}
	return json.Marshal(payload)
}

// splitExtra decodes data into v and returns the keys not in known.
func splitExtra(data []byte, v any, known map[string]struct{}) (map[string]json.RawMessage, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	for key := range known {
		delete(payload, key)
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}
