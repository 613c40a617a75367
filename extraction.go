package wxai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

const pathTextExtractions = "/ml/v1/text/extractions"

var errMissingExtractionID = errors.New("extraction id is required")

// CreateTextExtraction starts a job that extracts text from a document in
// Cloud Object Storage. Poll GetTextExtraction until Entity.Results.Done().
func (c *Client) CreateTextExtraction(ctx context.Context, req *TextExtractionRequest) (*TextExtractionResource, error) {
	if req == nil {
		return nil, llmerrors.ErrNilRequest
	}
	body := *req
	body.Scope.Fill(c.config.Scope)
	if err := body.Validate(); err != nil {
		return nil, fmt.Errorf("invalid text extraction request: %w", err)
	}
	return doJSON[TextExtractionResource](ctx, c, &call{
		operation: opExtractionCreate,
		method:    http.MethodPost,
		path:      pathTextExtractions,
		body:      &body,
	}, nil)
}

// GetTextExtraction returns the current state of a job.
func (c *Client) GetTextExtraction(ctx context.Context, id string) (*TextExtractionResource, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errMissingExtractionID
	}
	return doJSON[TextExtractionResource](ctx, c, &call{
		operation: opExtractionGet,
		method:    http.MethodGet,
		path:      pathTextExtractions + "/" + url.PathEscape(id),
		query:     c.scopeQuery(),
	}, nil)
}

// DeleteTextExtraction cancels a job. With hardDelete the job metadata is
// removed as well.
func (c *Client) DeleteTextExtraction(ctx context.Context, id string, hardDelete bool) error {
	if strings.TrimSpace(id) == "" {
		return errMissingExtractionID
	}
	query := c.scopeQuery()
	if hardDelete {
		query.Set("hard_delete", "true")
	}
	return c.doNoContent(ctx, &call{
		operation: opExtractionDelete,
		method:    http.MethodDelete,
		path:      pathTextExtractions + "/" + url.PathEscape(id),
		query:     query,
	})
}

// scopeQuery returns the default scope as query parameters.
func (c *Client) scopeQuery() url.Values {
	q := url.Values{}
	if c.config.Scope.ProjectID != "" {
		q.Set("project_id", c.config.Scope.ProjectID)
	}
	if c.config.Scope.SpaceID != "" {
		q.Set("space_id", c.config.Scope.SpaceID)
	}
	return q
}
