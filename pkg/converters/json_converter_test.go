package converters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/vision-ocr/internal/models"
)

func sampleReport() *models.BatchReport {
	return &models.BatchReport{
		Format: models.FormatMarkdown,
		Model:  "llava:7b",
		Results: map[string]models.OCRResult{
			"b.png": {ImageID: "b.png", Success: true, Output: &models.FormattedResult{Format: models.FormatMarkdown, Text: "# B"}},
			"a.png": {ImageID: "a.png", Success: true, Output: &models.FormattedResult{Format: models.FormatMarkdown, Text: "# A\n"}},
			"c.png": {ImageID: "c.png", Error: &models.Failure{Kind: models.KindIO, Message: "no such file"}},
		},
		Statistics: models.Statistics{Total: 3, Successful: 2, Failed: 1},
	}
}

func TestJSONConverterKeepsReportAndAddsErrors(t *testing.T) {
	data, err := NewJSONConverter().Convert(sampleReport())
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "results")
	assert.Contains(t, doc, "statistics")
	assert.JSONEq(t, `{"c.png":{"kind":"io_error","message":"no such file"}}`, string(doc["errors"]))

	var back models.BatchReport
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 3, len(back.Results))
	assert.Equal(t, models.Statistics{Total: 3, Successful: 2, Failed: 1}, back.Statistics)
}

func TestMarkdownConverter(t *testing.T) {
	data, err := NewMarkdownConverter().Convert(sampleReport())
	require.NoError(t, err)
	want := "# OCR Report\n\n" +
		"- Format: markdown\n" +
		"- Model: llava:7b\n" +
		"- Total: 3, successful: 2, failed: 1\n" +
		"\n## a.png\n\n# A\n" +
		"\n## b.png\n\n# B\n" +
		"\n## c.png\n\n> **Failed** (io_error): no such file\n"
	assert.Equal(t, want, string(data))
}

func TestTextConverter(t *testing.T) {
	data, err := (&TextConverter{}).Convert(sampleReport())
	require.NoError(t, err)
	assert.Contains(t, string(data), "=== a.png ===\n# A\n")
	assert.Contains(t, string(data), "ERROR (io_error): no such file")
	assert.Contains(t, string(data), "total=3 successful=2 failed=1")
}

func TestForName(t *testing.T) {
	for name, ext := range map[string]string{"json": ".json", "markdown": ".md", "MD": ".md", "text": ".txt", "": ".json"} {
		c, err := ForName(name)
		require.NoError(t, err, name)
		assert.Equal(t, ext, c.Extension())
	}
	_, err := ForName("pdf")
	assert.Error(t, err)

	_, err = NewJSONConverter().Convert(nil)
	assert.Error(t, err)
}
