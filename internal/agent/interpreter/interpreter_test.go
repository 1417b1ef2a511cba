package interpreter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/logger"
)

func TestInterpretText(t *testing.T) {
	in := New(nil)
	res, err := in.Interpret("\r\n\r\n  Hello   \r\nWorld\t\r\n\r\n", models.FormatText)
	require.NoError(t, err)
	assert.Equal(t, "  Hello\nWorld", res.Text)
	assert.Equal(t, models.FormatText, res.Format)
	assert.False(t, res.Degraded)
}

func TestInterpretMarkdownPassthrough(t *testing.T) {
	in := New(nil)
	raw := "# Title\n- item1\n- item2"
	res, err := in.Interpret(raw, models.FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, raw, res.Text)
	assert.Equal(t, raw, res.Raw)

	res, err = in.Interpret("\n\nline one  \nline two\n\n", models.FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "line one  \nline two", res.Text, "hard breaks are kept")
}

func TestInterpretJSON(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
		degraded bool
	}{
		{
			name:     "well formed",
			raw:      `{"b":1,"a":[true,null]}`,
			wantText: "{\n  \"b\": 1,\n  \"a\": [\n    true,\n    null\n  ]\n}",
		},
		{
			name:     "embedded in prose",
			raw:      "Here is the data: {\"a\": 1} hope this helps",
			wantText: "{\n  \"a\": 1\n}",
			degraded: true,
		},
		{
			name:     "code fence",
			raw:      "```json\n[{\"name\": \"brace } in string\"}]\n```",
			wantText: "[\n  {\n    \"name\": \"brace } in string\"\n  }\n]",
			degraded: true,
		},
		{
			name:     "skips unbalanced candidate",
			raw:      "Note {not json} then {\"ok\": \"yes\"}",
			wantText: "{\n  \"ok\": \"yes\"\n}",
			degraded: true,
		},
	}

	in := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := in.Interpret(tt.raw, models.FormatJSON)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, res.Text)
			assert.Equal(t, tt.degraded, res.Degraded)
			assert.NotNil(t, res.JSON)
		})
	}
}

func TestInterpretJSONKeepsNumbers(t *testing.T) {
	res, err := New(nil).Interpret(`{"total": 12.50}`, models.FormatJSON)
	require.NoError(t, err)
	obj, ok := res.JSON.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, json.Number("12.50"), obj["total"])
}

func TestInterpretJSONMismatch(t *testing.T) {
	log := logger.NewTestLogger()
	in := New(log)

	res, err := in.Interpret("I could not read this image.", models.FormatJSON)
	require.Error(t, err)
	assert.Equal(t, models.KindFormatMismatch, models.KindOf(err))
	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.Equal(t, "I could not read this image.", res.Raw)
	assert.Equal(t, "I could not read this image.", res.Text)
	assert.Nil(t, res.JSON)
	assert.Equal(t, 1, log.Count("WARN", "Model output did not match format"))
}

func TestInterpretKeyValue(t *testing.T) {
	in := New(nil)

	res, err := in.Interpret("Name: Alice\nAge: 30", models.FormatKeyValue)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Name": "Alice", "Age": "30"}, res.KeyValues)
	assert.Equal(t, []models.KeyValuePair{{Key: "Name", Value: "Alice"}, {Key: "Age", Value: "30"}}, res.Pairs)
	assert.Equal(t, "Name: Alice\nAge: 30", res.Text)

	raw := "- **Invoice No**: 42\n1. Date = 2024-01-01\n| Total | 9.99 |\n|---|---|\nTime: 10:30\nItem - Pen\nItem - Ink\nthank you for shopping"
	res, err = in.Interpret(raw, models.FormatKeyValue)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Invoice No":   "42",
		"Date":         "2024-01-01",
		"Total":        "9.99",
		"Time":         "10:30",
		"Item":         "Pen",
		"Item (2)":     "Ink",
		UnmatchedKey:   "thank you for shopping",
	}, res.KeyValues)
	assert.False(t, res.Degraded)
}

func TestInterpretKeyValueKeepsLiteralMarkers(t *testing.T) {
	raw := "**Vendor:** ACME\n__init__ = 1\nNote: a **bold** word\nTotal: **12**\n---\n:"
	res, err := New(nil).Interpret(raw, models.FormatKeyValue)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Vendor":     "ACME",
		"__init__":   "1",
		"Note":       "a **bold** word",
		"Total":      "12",
		UnmatchedKey: "---\n:",
	}, res.KeyValues)
}

func TestInterpretKeyValueNothingMatched(t *testing.T) {
	res, err := New(nil).Interpret("just prose\nmore prose", models.FormatKeyValue)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{UnmatchedKey: "just prose\nmore prose"}, res.KeyValues)
	assert.True(t, res.Degraded)
}

func TestInterpretStructured(t *testing.T) {
	raw := "# Invoice\nIssued by ACME\n\n| Item | Qty |\n|------|-----|\n| Pen | 2 |\n| Ink | 1 |\n\n## Notes\n- paid\n- shipped\n  - tracked"
	res, err := New(nil).Interpret(raw, models.FormatStructured)
	require.NoError(t, err)
	require.NotNil(t, res.Structured)
	assert.False(t, res.Degraded)
	assert.False(t, res.Structured.Unstructured)

	require.Len(t, res.Structured.Sections, 2)
	invoice := res.Structured.Sections[0]
	assert.Equal(t, "Invoice", invoice.Heading)
	assert.Equal(t, 1, invoice.Level)
	assert.Equal(t, []string{"Issued by ACME"}, invoice.Text)
	require.Len(t, invoice.Tables, 1)
	assert.Equal(t, []string{"Item", "Qty"}, invoice.Tables[0].Header)
	assert.Equal(t, [][]string{{"Pen", "2"}, {"Ink", "1"}}, invoice.Tables[0].Rows)

	notes := res.Structured.Sections[1]
	assert.Equal(t, "Notes", notes.Heading)
	assert.Equal(t, 2, notes.Level)
	assert.Equal(t, [][]string{{"paid", "shipped", "tracked"}}, notes.Lists)
}

func TestInterpretStructuredFallsBackToSingleSection(t *testing.T) {
	raw := "Dear customer,\nthank you."
	res, err := New(nil).Interpret(raw, models.FormatStructured)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	require.NotNil(t, res.Structured)
	assert.True(t, res.Structured.Unstructured)
	assert.Equal(t, []models.Section{{Text: []string{raw}}}, res.Structured.Sections)
}

func TestInterpretUnknownFormat(t *testing.T) {
	_, err := New(nil).Interpret("x", models.FormatType("yaml"))
	assert.Equal(t, models.KindInvalidArgument, models.KindOf(err))
}
