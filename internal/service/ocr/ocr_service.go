package ocr

import (
    "context"

    "github.com/feichai0017/vision-ocr/internal/models"
    "github.com/feichai0017/vision-ocr/pkg/queue"
)

type OCRProcessor interface {
    ProcessImage(ctx context.Context, path string, format models.FormatType) (*models.FormattedResult, error)
    ProcessImageBytes(ctx context.Context, name string, data []byte, format models.FormatType) (*models.FormattedResult, error)
    ProcessBatch(ctx context.Context, req BatchRequest) (*models.BatchReport, error)

    SubmitBatch(ctx context.Context, req JobRequest) (*models.BatchJob, error)
    HandleBatchTask(ctx context.Context, task *queue.Task) error
    GetJobStatus(ctx context.Context, jobID string) (*models.BatchJob, error)
    GetJobReport(ctx context.Context, jobID string) (*models.BatchReport, error)
    CancelJob(ctx context.Context, jobID string) error
    CleanupJobs(ctx context.Context) error

    ListModels(ctx context.Context) ([]string, error)
}

// BatchRequest selects the inputs of one batch. Exactly one of Path, Paths
// or Inputs is used, in that order of precedence.
type BatchRequest struct {
    Path       string              // a directory or a single image file
    Paths      []string            // explicit list, used verbatim
    Inputs     []models.ImageInput // in-memory inputs, e.g. uploads
    Format     models.FormatType
    Recursive  bool
    Preprocess *bool // nil uses the service default
    MaxWorkers int   // <= 0 uses the service default

    // OnResult is called once per input as soon as its result is known.
    // Calls are serialized.
    OnResult func(result models.OCRResult)
}

// UploadedFile is one image of an asynchronous batch.
type UploadedFile struct {
    Name string
    Data []byte
}

type JobRequest struct {
    Files      []UploadedFile
    Format     models.FormatType
    Preprocess *bool
    Priority   int
}
