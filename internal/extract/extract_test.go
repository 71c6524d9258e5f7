package extract

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMarkdownStripsSyntax(t *testing.T) {
	md := "# Title\n\nSome **bold** and _italic_ text with a [link](http://x).\n\n- item one\n- item two\n"
	got := ExtractMarkdown(md)
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "**")
	assert.Contains(t, got, "bold")
	assert.Contains(t, got, "link")
	assert.Contains(t, got, "item one")
}

func TestExtractDispatchesByMime(t *testing.T) {
	got, err := Extract([]byte("# Hi"), "md", Limits{})
	require.NoError(t, err)
	assert.Equal(t, "Hi", got)

	got, err = Extract([]byte("plain text"), "txt", Limits{})
	require.NoError(t, err)
	assert.Equal(t, "plain text", got)
}

func buildPDFStream(t *testing.T, flate bool, content string) []byte {
	t.Helper()
	var body []byte
	var dict string
	if flate {
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		_, err := w.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		body = buf.Bytes()
		dict = "<< /Length 10 /Filter /FlateDecode >>\n"
	} else {
		body = []byte(content)
		dict = "<< /Length 10 >>\n"
	}
	var out bytes.Buffer
	out.WriteString(dict)
	out.WriteString("stream\n")
	out.Write(body)
	out.WriteString("\nendstream\n")
	return out.Bytes()
}

func TestExtractPDFPlainContentStream(t *testing.T) {
	content := "BT /F1 12 Tf (Hello World) Tj ET"
	pdf := buildPDFStream(t, false, content)

	got, err := ExtractPDF(pdf, Limits{})
	require.NoError(t, err)
	assert.Contains(t, got, "Hello World")
}

func TestExtractPDFFlateContentStream(t *testing.T) {
	content := "BT (Compressed Text) Tj ET"
	pdf := buildPDFStream(t, true, content)

	got, err := ExtractPDF(pdf, Limits{})
	require.NoError(t, err)
	assert.Contains(t, got, "Compressed Text")
}

func TestExtractPDFDiscardsNonTjStrings(t *testing.T) {
	content := "(not shown) cm BT (shown) Tj ET"
	pdf := buildPDFStream(t, false, content)

	got, err := ExtractPDF(pdf, Limits{})
	require.NoError(t, err)
	assert.NotContains(t, got, "not shown")
	assert.Contains(t, got, "shown")
}

func TestExtractPDFRespectsMaxPages(t *testing.T) {
	var pdf bytes.Buffer
	pdf.Write(buildPDFStream(t, false, "(page one) Tj"))
	pdf.Write(buildPDFStream(t, false, "(page two) Tj"))

	got, err := ExtractPDF(pdf.Bytes(), Limits{MaxPages: 1})
	require.NoError(t, err)
	assert.Contains(t, got, "page one")
	assert.NotContains(t, got, "page two")
}
