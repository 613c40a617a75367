package types //nolint:revive // package name is intentional

import (
	"errors"

	llmerrors "github.com/blueberrycongee/wxai/pkg/errors"
)

// Text extraction job states.
const (
	ExtractionSubmitted   = "submitted"
	ExtractionUploading   = "uploading"
	ExtractionRunning     = "running"
	ExtractionDownloading = "downloading"
	ExtractionCompleted   = "completed"
	ExtractionFailed      = "failed"
)

// DataReference points at a document in Cloud Object Storage through a
// connection asset.
type DataReference struct {
	Type       string         `json:"type"`
	Connection ConnectionRef  `json:"connection"`
	Location   ObjectLocation `json:"location"`
}

// ConnectionRef names a connection asset.
type ConnectionRef struct {
	ID string `json:"id"`
}

// ObjectLocation is a bucket and object key.
type ObjectLocation struct {
	Bucket   string `json:"bucket"`
	FileName string `json:"file_name"`
}

// TextExtractionRequest is the body of POST /ml/v1/text/extractions.
type TextExtractionRequest struct {
	DocumentReference DataReference             `json:"document_reference"`
	ResultsReference  DataReference             `json:"results_reference"`
	Parameters        *TextExtractionParameters `json:"parameters,omitempty"`
	Custom            map[string]any            `json:"custom,omitempty"`
	Scope
}

// Validate checks the request.
func (r *TextExtractionRequest) Validate() error {
	if r == nil {
		return llmerrors.ErrNilRequest
	}
	if err := r.Scope.validate(); err != nil {
		return err
	}
	if r.DocumentReference.Location.FileName == "" {
		return errors.New("document_reference.location.file_name is required")
	}
	if r.ResultsReference.Location.FileName == "" {
		return errors.New("results_reference.location.file_name is required")
	}
	return nil
}

// TextExtractionParameters tune an extraction job.
type TextExtractionParameters struct {
	RequestedOutputs []string `json:"requested_outputs,omitempty"`
	Mode             string   `json:"mode,omitempty"`
	OCRMode          string   `json:"ocr_mode,omitempty"`
	Languages        []string `json:"languages,omitempty"`
}

// TextExtractionResource is a text extraction job as returned by create and
// get.
type TextExtractionResource struct {
	Metadata ResourceMetadata     `json:"metadata"`
	Entity   TextExtractionEntity `json:"entity"`
}

// ResourceMetadata is the common metadata block of a job.
type ResourceMetadata struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	SpaceID   string `json:"space_id,omitempty"`
}

// TextExtractionEntity is the body of a job.
type TextExtractionEntity struct {
	DocumentReference DataReference             `json:"document_reference"`
	ResultsReference  DataReference             `json:"results_reference"`
	Parameters        *TextExtractionParameters `json:"parameters,omitempty"`
	Results           TextExtractionResults     `json:"results"`
}

// TextExtractionResults reports job progress.
type TextExtractionResults struct {
	Status               string          `json:"status"`
	NumberPagesProcessed int             `json:"number_pages_processed,omitempty"`
	RunningAt            string          `json:"running_at,omitempty"`
	CompletedAt          string          `json:"completed_at,omitempty"`
	Error                *ExtractionFail `json:"error,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (r TextExtractionResults) Done() bool {
	return r.Status == ExtractionCompleted || r.Status == ExtractionFailed
}

// ExtractionFail describes why a job failed.
type ExtractionFail struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info,omitempty"`
}
