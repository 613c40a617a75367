package wxai

import (
	"context"
	"net/http"

	"github.com/blueberrycongee/wxai/pkg/cache"
	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

const modelSpecsCachePrefix = "wxai:model_specs:"

// ListFoundationModelSpecs lists the foundation models of the region. When a
// cache is configured, pages are cached for the model specs TTL, keyed by
// base URL and query.
func (c *Client) ListFoundationModelSpecs(ctx context.Context, q FoundationModelsQuery) (*FoundationModels, error) {
	query := q.Values()
	key := modelSpecsCachePrefix + c.baseURL.Host + "?" + query.Encode()

	if c.cache != nil {
		var cached FoundationModels
		found, err := cache.GetJSON(ctx, c.cache, key, &cached)
		if err != nil {
			c.logger.WarnContext(ctx, "model specs cache read failed", "error", err)
		}
		if found {
			return &cached, nil
		}
	}

	resp, err := doJSON[FoundationModels](ctx, c, &call{
		operation: opModelSpecs,
		method:    http.MethodGet,
		path:      "/ml/v1/foundation_model_specs",
		query:     query,
	}, nil)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := cache.SetJSON(ctx, c.cache, key, resp, c.config.ModelSpecsTTL); err != nil {
			c.logger.WarnContext(ctx, "model specs cache write failed", "error", err)
		}
	}
	return resp, nil
}

// FoundationModelSpec returns the spec of one model. It fails with a
// not_found_error APIError when the region does not offer the model.
func (c *Client) FoundationModelSpec(ctx context.Context, modelID string) (*FoundationModel, error) {
	models, err := c.ListFoundationModelSpecs(ctx, FoundationModelsQuery{
		Filters: "modelid_" + modelID,
	})
	if err != nil {
		return nil, err
	}
	for i := range models.Resources {
		if models.Resources[i].ModelID == modelID {
			return &models.Resources[i], nil
		}
	}
	return nil, llmerrors.NewNotFoundError("model_not_supported", "model "+modelID+" is not available in this region")
}
