package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/converters"
	"github.com/feichai0017/vision-ocr/pkg/logger"
	"github.com/feichai0017/vision-ocr/pkg/queue"
)

// ErrJobsDisabled is returned by the job methods when no queue or storage
// was configured.
var ErrJobsDisabled = errors.New("asynchronous jobs are not configured")

// batchPayload is the queue payload of an ocr:batch task.
type batchPayload struct {
	JobID      string            `json:"jobId"`
	Format     models.FormatType `json:"format"`
	Preprocess *bool             `json:"preprocess,omitempty"`
	Inputs     []jobInput        `json:"inputs"`
}

type jobInput struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

func inputKey(jobID string, index int, name string) string {
	return path.Join("jobs", jobID, "inputs", fmt.Sprintf("%03d-%s", index, path.Base(name)))
}

// ReportKey is the storage key of a finished job's report.
func ReportKey(jobID string) string {
	return path.Join("jobs", jobID, "report.json")
}

func (s *OCRService) jobsEnabled() error {
	if s.queue == nil || s.storage == nil {
		return ErrJobsDisabled
	}
	return nil
}

// SubmitBatch stores the uploaded images and enqueues them as one job.
func (s *OCRService) SubmitBatch(ctx context.Context, req JobRequest) (*models.BatchJob, error) {
	if err := s.jobsEnabled(); err != nil {
		return nil, err
	}
	format, err := s.resolveFormat(req.Format)
	if err != nil {
		return nil, err
	}
	if len(req.Files) == 0 {
		return nil, models.Errorf(models.KindNoInputFound, "submit", "", "no images uploaded")
	}

	jobID := uuid.New().String()
	log := logger.FromContext(logger.ContextWithJobID(ctx, jobID), s.logger)

	payload := batchPayload{JobID: jobID, Format: format, Preprocess: req.Preprocess}
	names := make([]string, 0, len(req.Files))
	taken := make(map[string]bool, len(req.Files))
	for i, f := range req.Files {
		name := UniqueName(taken, f.Name)
		key, err := s.storage.Store(ctx, bytes.NewReader(f.Data), inputKey(jobID, i, f.Name))
		if err != nil {
			log.Error("Failed to store job input", logger.String("filename", f.Name), logger.Error(err))
			return nil, fmt.Errorf("failed to store input %s: %w", f.Name, err)
		}
		payload.Inputs = append(payload.Inputs, jobInput{Name: name, Key: key})
		names = append(names, name)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now()
	task := &queue.Task{
		ID:       jobID,
		Type:     queue.TaskTypeOCRBatch,
		Priority: req.Priority,
		Payload:  data,
		Metadata: map[string]string{
			"format": format.String(),
			"files":  strconv.Itoa(len(req.Files)),
		},
		CreatedAt: now,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		log.Error("Failed to enqueue job", logger.Error(err))
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	if err := s.queue.SaveStatus(ctx, &queue.TaskStatus{
		TaskID:    jobID,
		Status:    queue.StatusPending,
		Total:     len(req.Files),
		StartedAt: now,
	}); err != nil {
		log.Error("Failed to save initial status", logger.Error(err))
	}

	log.Info("Batch job submitted", logger.Int("images", len(req.Files)), logger.String("format", format.String()))
	return &models.BatchJob{
		ID:        jobID,
		Status:    models.StatusPending,
		Format:    format,
		Inputs:    names,
		Metadata:  task.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HandleBatchTask executes a queued batch and persists its report.
func (s *OCRService) HandleBatchTask(ctx context.Context, task *queue.Task) error {
	if err := s.jobsEnabled(); err != nil {
		return err
	}
	if task == nil || len(task.Payload) == 0 {
		return fmt.Errorf("invalid task: missing payload")
	}
	var payload batchPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	ctx = logger.ContextWithJobID(ctx, payload.JobID)
	log := logger.FromContext(ctx, s.logger)

	if current, err := s.queue.GetTaskStatus(ctx, payload.JobID); err == nil && current.Status == queue.StatusCancelled {
		log.Info("Skipping cancelled job")
		return nil
	}

	inputs := make([]models.ImageInput, 0, len(payload.Inputs))
	for _, in := range payload.Inputs {
		data, err := s.readObject(ctx, in.Key)
		if err != nil {
			return fmt.Errorf("failed to load input %s: %w", in.Name, err)
		}
		inputs = append(inputs, models.ImageInput{ID: in.Name, Data: data})
	}

	status := &queue.TaskStatus{
		TaskID:    payload.JobID,
		Status:    queue.StatusRunning,
		Total:     len(inputs),
		StartedAt: time.Now(),
	}
	s.saveStatus(ctx, status)

	report, err := s.ProcessBatch(ctx, BatchRequest{
		Inputs:     inputs,
		Format:     payload.Format,
		Preprocess: payload.Preprocess,
		OnResult: func(r models.OCRResult) {
			if r.Success {
				status.Succeeded++
			} else {
				status.Failed++
			}
			status.Progress = float64(status.Succeeded+status.Failed) / float64(status.Total)
			s.saveProgress(ctx, status)
		},
	})
	if err != nil {
		status.Status = queue.StatusFailed
		status.Error = err.Error()
		status.FinishedAt = time.Now()
		s.saveStatus(context.WithoutCancel(ctx), status)
		return err
	}

	if ctx.Err() != nil {
		// Cancelled by the user, or the worker is shutting down and the job
		// should be retried.
		current, sErr := s.queue.GetTaskStatus(context.WithoutCancel(ctx), payload.JobID)
		if sErr == nil && current.Status == queue.StatusCancelled {
			log.Info("Job cancelled while running", logger.Stringer("statistics", report.Statistics))
			return nil
		}
		return ctx.Err()
	}

	data, err := converters.NewJSONConverter().Convert(report)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), ReportKey(payload.JobID)); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	status.Status = queue.StatusCompleted
	status.Progress = 1.0
	status.FinishedAt = time.Now()
	s.saveStatus(ctx, status)

	log.Info("Batch job completed", logger.Stringer("statistics", report.Statistics))
	return nil
}

// GetJobStatus 获取任务状态
func (s *OCRService) GetJobStatus(ctx context.Context, jobID string) (*models.BatchJob, error) {
	if err := s.jobsEnabled(); err != nil {
		return nil, err
	}
	status, err := s.queue.GetTaskStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}

	job := &models.BatchJob{
		ID:        status.TaskID,
		Status:    jobStatus(status.Status),
		Progress:  status.Progress,
		Error:     status.Error,
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}
	if status.Total > 0 {
		job.Statistics = &models.Statistics{
			Total:      status.Total,
			Successful: status.Succeeded,
			Failed:     status.Failed,
		}
	}
	return job, nil
}

func jobStatus(s string) models.ProcessingStatus {
	switch s {
	case queue.StatusRunning:
		return models.StatusRunning
	case queue.StatusCompleted:
		return models.StatusCompleted
	case queue.StatusFailed:
		return models.StatusFailed
	case queue.StatusCancelled:
		return models.StatusCancelled
	default:
		return models.StatusPending
	}
}

// GetJobReport returns the report of a completed job.
func (s *OCRService) GetJobReport(ctx context.Context, jobID string) (*models.BatchReport, error) {
	job, err := s.GetJobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusCompleted {
		return nil, fmt.Errorf("job is not completed: %s", job.Status)
	}

	data, err := s.readObject(ctx, ReportKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	var report models.BatchReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// CancelJob marks the job cancelled and stops it in the queue.
func (s *OCRService) CancelJob(ctx context.Context, jobID string) error {
	if err := s.jobsEnabled(); err != nil {
		return err
	}
	status, err := s.queue.GetTaskStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job status: %w", err)
	}
	if status.Terminal() {
		return models.Errorf(models.KindInvalidArgument, "cancel", jobID, "job already %s", status.Status)
	}

	status.Status = queue.StatusCancelled
	status.FinishedAt = time.Now()
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	if err := s.queue.CancelTask(ctx, jobID); err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	s.logger.Info("Job cancelled", logger.String("jobId", jobID))
	return nil
}

// CleanupJobs removes stored inputs and reports older than the retention period.
func (s *OCRService) CleanupJobs(ctx context.Context) error {
	if err := s.jobsEnabled(); err != nil {
		return err
	}
	threshold := time.Now().Add(-s.config.RetentionPeriod)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("Completed jobs cleanup", logger.Time("threshold", threshold))
	return nil
}

func (s *OCRService) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// saveProgress never overwrites a cancellation recorded by CancelJob.
func (s *OCRService) saveProgress(ctx context.Context, status *queue.TaskStatus) {
	if ctx.Err() != nil {
		return
	}
	if current, err := s.queue.GetTaskStatus(ctx, status.TaskID); err == nil && current.Status == queue.StatusCancelled {
		return
	}
	s.saveStatus(ctx, status)
}

func (s *OCRService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save job status",
			logger.String("jobId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}
