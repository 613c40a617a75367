package types //nolint:revive // package name is intentional

import (
	"errors"

	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// ForecastRequest is the body of POST /ml/v1/time_series/forecast. Data is
// columnar: each key is a column name mapped to its values.
type ForecastRequest struct {
	ModelID    string                     `json:"model_id"`
	Data       map[string]json.RawMessage `json:"data"`
	Schema     ForecastSchema             `json:"schema"`
	Parameters *ForecastParameters        `json:"parameters,omitempty"`
	FutureData map[string]json.RawMessage `json:"future_data,omitempty"`
	Scope
}

// Validate checks the request.
func (r *ForecastRequest) Validate() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	if err := ValidateModelID(r.ModelID); err != nil {
		return err
	}
	if err := r.Scope.validate(); err != nil {
		return err
	}
	if len(r.Data) == 0 {
		return llmerrors.ErrMissingInput
	}
	if r.Schema.TimestampColumn == "" {
		return errors.New("schema.timestamp_column is required")
	}
	if _, ok := r.Data[r.Schema.TimestampColumn]; !ok {
		return errors.New("data is missing the timestamp column")
	}
	return nil
}

// ForecastSchema describes the columns of ForecastRequest.Data.
type ForecastSchema struct {
	TimestampColumn string   `json:"timestamp_column"`
	IDColumns       []string `json:"id_columns,omitempty"`
	Freq            string   `json:"freq,omitempty"`
	TargetColumns   []string `json:"target_columns,omitempty"`
}

// ForecastParameters tune a forecast.
type ForecastParameters struct {
	PredictionLength int `json:"prediction_length,omitempty"`
}

// ForecastResponse is the body of a forecast response.
type ForecastResponse struct {
	ModelID          string                       `json:"model_id"`
	CreatedAt        string                       `json:"created_at,omitempty"`
	Results          []map[string]json.RawMessage `json:"results"`
	InputDataPoints  int                          `json:"input_data_points,omitempty"`
	OutputDataPoints int                          `json:"output_data_points,omitempty"`
}
