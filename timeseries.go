package wxai

import (
	"context"
	"fmt"
	"net/http"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// ForecastTimeSeries forecasts future values of a time series with a
// time series foundation model.
func (c *Client) ForecastTimeSeries(ctx context.Context, req *ForecastRequest) (*ForecastResponse, error) {
	if req == nil {
		return nil, llmerrors.ErrNilRequest
	}
	body := *req
	body.Scope.Fill(c.config.Scope)
	if err := body.Validate(); err != nil {
		return nil, fmt.Errorf("invalid forecast request: %w", err)
	}
	return doJSON[ForecastResponse](ctx, c, &call{
		operation: opForecast,
		method:    http.MethodPost,
		path:      "/ml/v1/time_series/forecast",
		body:      &body,
		model:     body.ModelID,
	}, nil)
}
