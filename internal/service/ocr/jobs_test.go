package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/logger"
	"github.com/feichai0017/vision-ocr/pkg/queue"
)

type memoryQueue struct {
	mu        sync.Mutex
	tasks     []*queue.Task
	statuses  map[string]queue.TaskStatus
	cancelled []string
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{statuses: map[string]queue.TaskStatus{}}
}

func (q *memoryQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *memoryQueue) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.statuses[taskID]
	if !ok {
		return nil, queue.ErrTaskNotFound
	}
	return &st, nil
}

func (q *memoryQueue) CancelTask(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *memoryQueue) SaveStatus(ctx context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.TaskID] = *status
	return nil
}

type memoryStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	threshold time.Time
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) Store(ctx context.Context, r io.Reader, key string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return key, nil
}

func (m *memoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
	return nil
}

func newJobService(t *testing.T, client *scriptedClient) (*OCRService, *memoryQueue, *memoryStorage) {
	t.Helper()
	q, st := newMemoryQueue(), newMemoryStorage()
	cfg := DefaultServiceConfig()
	cfg.Model = "test-model"
	cfg.MaxWorkers = 2
	svc := NewService(client, logger.NewNop(), cfg, WithQueue(q), WithStorage(st))
	return svc, q, st
}

func TestJobsDisabledWithoutQueue(t *testing.T) {
	svc := newTestService(&scriptedClient{}, 1)
	_, err := svc.SubmitBatch(context.Background(), JobRequest{})
	assert.ErrorIs(t, err, ErrJobsDisabled)
	_, err = svc.GetJobStatus(context.Background(), "id")
	assert.ErrorIs(t, err, ErrJobsDisabled)
	assert.ErrorIs(t, svc.CleanupJobs(context.Background()), ErrJobsDisabled)
}

func TestSubmitAndHandleBatchJob(t *testing.T) {
	client := &scriptedClient{fallback: "Total: 12", replies: map[string]string{"b.png": "Vendor = ACME"}}
	svc, q, st := newJobService(t, client)
	ctx := context.Background()

	job, err := svc.SubmitBatch(ctx, JobRequest{
		Files: []UploadedFile{
			{Name: "a.png", Data: pngBytes(t)},
			{Name: "b.png", Data: pngBytes(t)},
			{Name: "broken.png", Data: []byte("not an image")},
		},
		Format: models.FormatKeyValue,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, []string{"a.png", "b.png", "broken.png"}, job.Inputs)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskTypeOCRBatch, q.tasks[0].Type)
	assert.Len(t, st.objects, 3)

	pending, err := svc.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)

	_, err = svc.GetJobReport(ctx, job.ID)
	assert.Error(t, err)

	require.NoError(t, svc.HandleBatchTask(ctx, q.tasks[0]))

	done, err := svc.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, 1.0, done.Progress)
	assert.Equal(t, &models.Statistics{Total: 3, Successful: 2, Failed: 1}, done.Statistics)

	report, err := svc.GetJobReport(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FormatKeyValue, report.Format)
	assert.Equal(t, "test-model", report.Model)
	assert.Equal(t, map[string]string{"Vendor": "ACME"}, report.Results["b.png"].Output.KeyValues)
	assert.Equal(t, models.KindUnsupportedFormat, report.Results["broken.png"].Error.Kind)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(st.objects[ReportKey(job.ID)], &doc))
	assert.Contains(t, string(doc["errors"]), "broken.png")

	err = svc.CancelJob(ctx, job.ID)
	assert.Equal(t, models.KindInvalidArgument, models.KindOf(err))
}

func TestSameNamedUploadsKeepSeparateResults(t *testing.T) {
	client := &scriptedClient{fallback: "ok"}
	svc, q, st := newJobService(t, client)
	ctx := context.Background()

	job, err := svc.SubmitBatch(ctx, JobRequest{
		Files: []UploadedFile{
			{Name: "scan.png", Data: pngBytes(t)},
			{Name: "scan.png", Data: pngBytes(t)},
		},
		Format: models.FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"scan.png", "scan.png (2)"}, job.Inputs)
	assert.Len(t, st.objects, 2)

	require.NoError(t, svc.HandleBatchTask(ctx, q.tasks[0]))

	status, err := svc.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	report, err := svc.GetJobReport(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Statistics.Total)
	assert.Equal(t, report.Statistics.Total, status.Statistics.Total)
	assert.Contains(t, report.Results, "scan.png")
	assert.Contains(t, report.Results, "scan.png (2)")
	assert.Equal(t, int32(2), client.calls)
}

func TestSubmitBatchValidatesRequest(t *testing.T) {
	svc, q, _ := newJobService(t, &scriptedClient{})
	ctx := context.Background()

	_, err := svc.SubmitBatch(ctx, JobRequest{})
	assert.Equal(t, models.KindNoInputFound, models.KindOf(err))

	_, err = svc.SubmitBatch(ctx, JobRequest{
		Files:  []UploadedFile{{Name: "a.png", Data: pngBytes(t)}},
		Format: models.FormatType("pdf"),
	})
	assert.Equal(t, models.KindInvalidArgument, models.KindOf(err))
	assert.Empty(t, q.tasks)
}

func TestCancelledJobIsSkipped(t *testing.T) {
	client := &scriptedClient{fallback: "ok"}
	svc, q, st := newJobService(t, client)
	ctx := context.Background()

	job, err := svc.SubmitBatch(ctx, JobRequest{Files: []UploadedFile{{Name: "a.png", Data: pngBytes(t)}}})
	require.NoError(t, err)
	require.NoError(t, svc.CancelJob(ctx, job.ID))
	assert.Equal(t, []string{job.ID}, q.cancelled)

	require.NoError(t, svc.HandleBatchTask(ctx, q.tasks[0]))
	assert.Zero(t, client.calls)

	status, err := svc.GetJobStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, status.Status)
	_, ok := st.objects[ReportKey(job.ID)]
	assert.False(t, ok)
}

func TestHandleBatchTaskReturnsContextErrorOnShutdown(t *testing.T) {
	svc, q, _ := newJobService(t, &scriptedClient{fallback: "ok"})
	job, err := svc.SubmitBatch(context.Background(), JobRequest{Files: []UploadedFile{{Name: "a.png", Data: pngBytes(t)}}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svc.HandleBatchTask(ctx, q.tasks[0])
	assert.ErrorIs(t, err, context.Canceled)

	status, err := svc.GetJobStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, status.Status)
}

func TestHandleBatchTaskRejectsBadPayload(t *testing.T) {
	svc, _, _ := newJobService(t, &scriptedClient{})
	assert.Error(t, svc.HandleBatchTask(context.Background(), &queue.Task{}))
	assert.Error(t, svc.HandleBatchTask(context.Background(), &queue.Task{Payload: json.RawMessage(`{"jobId":`)}))
}

func TestCleanupJobsUsesRetention(t *testing.T) {
	svc, _, st := newJobService(t, &scriptedClient{})
	before := time.Now()
	require.NoError(t, svc.CleanupJobs(context.Background()))
	assert.WithinDuration(t, before.Add(-24*time.Hour), st.threshold, time.Minute)
}

func TestInputKeysAreOrderedAndFlat(t *testing.T) {
	key := inputKey("job", 7, "../../etc/scan.png")
	assert.Equal(t, "jobs/job/inputs/007-scan.png", key)
	assert.True(t, strings.HasSuffix(ReportKey("job"), "/report.json"))
}
