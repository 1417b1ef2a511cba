package ocr

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/logger"
)

// scriptedClient answers from a script keyed by image id and records how
// many queries ran at the same time.
type scriptedClient struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string]error
	fallback string
	delay    time.Duration

	calls    int32
	inFlight int32
	maxSeen  int32
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Query(ctx context.Context, req models.OCRRequest) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	n := atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&c.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&c.maxSeen, seen, n) {
			break
		}
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", models.NewError(models.KindCanceled, "query", req.ImageID, ctx.Err())
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.errs[req.ImageID]; ok {
		return "", err
	}
	if reply, ok := c.replies[req.ImageID]; ok {
		return reply, nil
	}
	return c.fallback, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		img.SetGray(x, x%8, color.Gray{Y: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeImage(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, pngBytes(t), 0o644))
	return path
}

func newTestService(client *scriptedClient, workers int) *OCRService {
	cfg := DefaultServiceConfig()
	cfg.MaxWorkers = workers
	cfg.Model = "test-model"
	return NewService(client, logger.NewNop(), cfg)
}

func TestProcessBatchRecordsMissingFile(t *testing.T) {
	dir := t.TempDir()
	a := writeImage(t, filepath.Join(dir, "a.png"))
	b := writeImage(t, filepath.Join(dir, "b.png"))
	missing := filepath.Join(dir, "missing.png")

	client := &scriptedClient{fallback: "# Title\n- item1\n- item2"}
	report, err := newTestService(client, 2).ProcessBatch(context.Background(), BatchRequest{
		Paths:  []string{a, missing, b},
		Format: models.FormatMarkdown,
	})
	require.NoError(t, err)

	assert.Equal(t, models.Statistics{Total: 3, Successful: 2, Failed: 1}, report.Statistics)
	require.Len(t, report.Results, 3)
	assert.True(t, report.Results[a].Success)
	assert.Equal(t, "# Title\n- item1\n- item2", report.Results[a].Output.Text)
	assert.True(t, report.Results[b].Success)

	failed := report.Results[missing]
	assert.False(t, failed.Success)
	require.NotNil(t, failed.Error)
	assert.Equal(t, models.KindIO, failed.Error.Kind)
	assert.Nil(t, failed.Output)
	assert.Equal(t, int32(2), atomic.LoadInt32(&client.calls))
	assert.Equal(t, "test-model", report.Model)
}

func TestProcessBatchSameResultsForAnyWorkerCount(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"1.png", "2.png", "3.png", "4.png", "5.png", "6.png"} {
		paths = append(paths, writeImage(t, filepath.Join(dir, name)))
	}
	replies := map[string]string{paths[0]: "Name: Alice", paths[3]: "Total = 12"}
	errs := map[string]error{paths[4]: models.Errorf(models.KindModelError, "query", paths[4], "status 500")}

	summarize := func(workers int) map[string]string {
		client := &scriptedClient{replies: replies, errs: errs, fallback: "Item: Pen"}
		report, err := newTestService(client, workers).ProcessBatch(context.Background(), BatchRequest{
			Path:   dir,
			Format: models.FormatKeyValue,
		})
		require.NoError(t, err)
		out := map[string]string{}
		for id, r := range report.Results {
			if r.Success {
				out[id] = r.Output.Text
			} else {
				out[id] = string(r.Error.Kind)
			}
		}
		return out
	}

	serial := summarize(1)
	assert.Len(t, serial, 6)
	assert.Equal(t, "model_error", serial[paths[4]])
	assert.Equal(t, serial, summarize(4))
	assert.Equal(t, serial, summarize(16))
}

func TestProcessBatchRespectsWorkerLimit(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeImage(t, filepath.Join(dir, string(rune('a'+i))+".png"))
	}
	client := &scriptedClient{fallback: "text", delay: 20 * time.Millisecond}
	report, err := newTestService(client, 1).ProcessBatch(context.Background(), BatchRequest{
		Path:       dir,
		Format:     models.FormatText,
		MaxWorkers: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, report.Statistics.Successful)
	assert.LessOrEqual(t, atomic.LoadInt32(&client.maxSeen), int32(3))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&client.maxSeen), int32(1))
}

func TestProcessBatchEnumeratesDirectories(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "b.png"))
	writeImage(t, filepath.Join(dir, "A.JPG"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0o644))
	writeImage(t, filepath.Join(dir, "nested", "c.tiff"))

	svc := newTestService(&scriptedClient{fallback: "ok"}, 2)

	flat, err := svc.enumerate(BatchRequest{Path: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "A.JPG"), filepath.Join(dir, "b.png")}, ids(flat))

	deep, err := svc.enumerate(BatchRequest{Path: dir, Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "A.JPG"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "nested", "c.tiff"),
	}, ids(deep))

	single, err := svc.enumerate(BatchRequest{Path: filepath.Join(dir, "b.png")})
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = svc.enumerate(BatchRequest{Path: filepath.Join(dir, "nope")})
	assert.Equal(t, models.KindIO, models.KindOf(err))
}

func ids(inputs []models.ImageInput) []string {
	out := make([]string, len(inputs))
	for i, in := range inputs {
		out[i] = in.ID
	}
	return out
}

func TestProcessBatchNoInputFound(t *testing.T) {
	client := &scriptedClient{fallback: "ok"}
	svc := newTestService(client, 2)

	_, err := svc.ProcessBatch(context.Background(), BatchRequest{Path: t.TempDir()})
	assert.Equal(t, models.KindNoInputFound, models.KindOf(err))

	_, err = svc.ProcessBatch(context.Background(), BatchRequest{})
	assert.Equal(t, models.KindNoInputFound, models.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(&client.calls))
}

func TestProcessBatchCollapsesDuplicatePaths(t *testing.T) {
	a := writeImage(t, filepath.Join(t.TempDir(), "a.png"))
	client := &scriptedClient{fallback: "ok"}
	report, err := newTestService(client, 2).ProcessBatch(context.Background(), BatchRequest{
		Paths:  []string{a, a, a},
		Format: models.FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Statistics.Total)
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
}

func TestProcessBatchRejectsDuplicateInputIDs(t *testing.T) {
	client := &scriptedClient{fallback: "ok"}
	_, err := newTestService(client, 2).ProcessBatch(context.Background(), BatchRequest{
		Inputs: []models.ImageInput{
			{ID: "scan.png", Data: pngBytes(t)},
			{ID: "scan.png", Data: []byte("other page")},
		},
	})
	assert.Equal(t, models.KindInvalidArgument, models.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(&client.calls))
}

func TestEnumerateUnreadableRootIsIOError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"))
	require.NoError(t, os.Chmod(dir, 0o000))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err := newTestService(&scriptedClient{}, 1).enumerate(BatchRequest{Path: dir, Recursive: true})
	assert.Equal(t, models.KindIO, models.KindOf(err))
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{}
	assert.Equal(t, "scan.png", UniqueName(taken, "scan.png"))
	assert.Equal(t, "scan.png (2)", UniqueName(taken, "scan.png"))
	assert.Equal(t, "scan.png (3)", UniqueName(taken, "scan.png"))
	assert.Equal(t, "page.png", UniqueName(taken, "page.png"))
}

func TestProcessBatchFormatMismatchIsDegradedSuccess(t *testing.T) {
	a := writeImage(t, filepath.Join(t.TempDir(), "a.png"))
	client := &scriptedClient{fallback: "Sorry, I only see a cat."}
	report, err := newTestService(client, 1).ProcessBatch(context.Background(), BatchRequest{
		Paths:  []string{a},
		Format: models.FormatJSON,
	})
	require.NoError(t, err)
	r := report.Results[a]
	assert.True(t, r.Success)
	require.NotNil(t, r.Output)
	assert.True(t, r.Output.Degraded)
	assert.Equal(t, "Sorry, I only see a cat.", r.Output.Raw)
	assert.Equal(t, 1, report.Statistics.Successful)
}

func TestProcessBatchCanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"))
	writeImage(t, filepath.Join(dir, "b.png"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var notified int32
	client := &scriptedClient{fallback: "ok"}
	report, err := newTestService(client, 1).ProcessBatch(ctx, BatchRequest{
		Path:     dir,
		OnResult: func(models.OCRResult) { atomic.AddInt32(&notified, 1) },
	})
	require.NoError(t, err)
	assert.Equal(t, models.Statistics{Total: 2, Successful: 0, Failed: 2}, report.Statistics)
	for _, r := range report.Results {
		assert.Equal(t, models.KindCanceled, r.Error.Kind)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&notified))
	assert.Zero(t, atomic.LoadInt32(&client.calls))
}

func TestProcessBatchCallsOnResultOncePerInput(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.png", "b.png", "c.png", "d.png"} {
		writeImage(t, filepath.Join(dir, n))
	}
	seen := map[string]int{}
	_, err := newTestService(&scriptedClient{fallback: "ok"}, 4).ProcessBatch(context.Background(), BatchRequest{
		Path: dir,
		OnResult: func(r models.OCRResult) {
			seen[r.ImageID]++
		},
	})
	require.NoError(t, err)
	assert.Len(t, seen, 4)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestProcessImage(t *testing.T) {
	a := writeImage(t, filepath.Join(t.TempDir(), "a.png"))
	svc := newTestService(&scriptedClient{fallback: "Name: Alice\nAge: 30"}, 1)

	out, err := svc.ProcessImage(context.Background(), a, models.FormatKeyValue)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Name": "Alice", "Age": "30"}, out.KeyValues)

	_, err = svc.ProcessImage(context.Background(), a+".missing", models.FormatText)
	assert.Equal(t, models.KindIO, models.KindOf(err))

	_, err = svc.ProcessImage(context.Background(), a, models.FormatType("yaml"))
	assert.Equal(t, models.KindInvalidArgument, models.KindOf(err))
}

func TestProcessImageSurfacesFormatMismatchWithFallback(t *testing.T) {
	svc := newTestService(&scriptedClient{fallback: "no json here"}, 1)
	out, err := svc.ProcessImageBytes(context.Background(), "upload.png", pngBytes(t), models.FormatJSON)
	assert.Equal(t, models.KindFormatMismatch, models.KindOf(err))
	assert.Contains(t, err.Error(), "upload.png")
	require.NotNil(t, out)
	assert.Equal(t, "no json here", out.Raw)
}

func TestProcessImageBytesRejectsGarbage(t *testing.T) {
	client := &scriptedClient{fallback: "ok"}
	svc := newTestService(client, 1)
	_, err := svc.ProcessImageBytes(context.Background(), "notes.png", []byte("plain text"), models.FormatText)
	assert.Equal(t, models.KindUnsupportedFormat, models.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(&client.calls))
}

func TestListModelsFallsBackToConfiguredModel(t *testing.T) {
	names, err := newTestService(&scriptedClient{}, 1).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"test-model"}, names)
}
