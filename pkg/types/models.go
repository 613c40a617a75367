package types //nolint:revive // package name is intentional

import (
	"net/url"
	"strconv"
)

// FoundationModelsQuery filters GET /ml/v1/foundation_model_specs.
type FoundationModelsQuery struct {
	Start       string
	Limit       int
	Filters     string
	TechPreview bool
}

// Values encodes the query as URL parameters.
func (q FoundationModelsQuery) Values() url.Values {
	v := url.Values{}
	if q.Start != "" {
		v.Set("start", q.Start)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Filters != "" {
		v.Set("filters", q.Filters)
	}
	if q.TechPreview {
		v.Set("tech_preview", "true")
	}
	return v
}

// FoundationModels is a page of model specifications.
type FoundationModels struct {
	TotalCount int               `json:"total_count"`
	Limit      int               `json:"limit"`
	First      *PageLink         `json:"first,omitempty"`
	Next       *PageLink         `json:"next,omitempty"`
	Resources  []FoundationModel `json:"resources"`
}

// PageLink is a pagination link.
type PageLink struct {
	Href string `json:"href"`
}

// FoundationModel describes one model available on the service.
type FoundationModel struct {
	ModelID            string           `json:"model_id"`
	Label              string           `json:"label,omitempty"`
	Provider           string           `json:"provider,omitempty"`
	Source             string           `json:"source,omitempty"`
	ShortDescription   string           `json:"short_description,omitempty"`
	Functions          []ModelFunction  `json:"functions,omitempty"`
	Tasks              []ModelTask      `json:"tasks,omitempty"`
	ModelLimits        *ModelLimits     `json:"model_limits,omitempty"`
	Lifecycle          []ModelLifecycle `json:"lifecycle,omitempty"`
	InputTier          string           `json:"input_tier,omitempty"`
	OutputTier         string           `json:"output_tier,omitempty"`
	NumberParams       string           `json:"number_params,omitempty"`
	SupportedLanguages []string         `json:"supported_languages,omitempty"`
}

// HasFunction reports whether the model supports the named function, such
// as "text_generation" or "text_chat".
func (m FoundationModel) HasFunction(id string) bool {
	for _, f := range m.Functions {
		if f.ID == id {
			return true
		}
	}
	return false
}

// ModelFunction names a capability of a model.
type ModelFunction struct {
	ID string `json:"id"`
}

// ModelTask names a task a model is suited for.
type ModelTask struct {
	ID string `json:"id"`
}

// ModelLimits bounds a model's context.
type ModelLimits struct {
	MaxSequenceLength int `json:"max_sequence_length,omitempty"`
	MaxOutputTokens   int `json:"max_output_tokens,omitempty"`
}

// ModelLifecycle is one lifecycle phase such as available or deprecated.
type ModelLifecycle struct {
	ID        string `json:"id"`
	StartDate string `json:"start_date,omitempty"`
}
