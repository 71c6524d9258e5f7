// Package extract implements the C15 Text Extractor: plain-text recovery
// from markdown and PDF sources, grounded on original_source's
// markdown_to_text (pulldown-cmark event walk) and read_pdf_text (lopdf
// content-stream Tj/TJ scan), reduced to what the Go standard library and
// the retrieved pack can express without a dedicated PDF dependency (see
// DESIGN.md for why none of the pack's libraries cover PDF parsing).
package extract

import "memorized/internal/apperr"

// Limits bounds PDF extraction cost, mirroring the PDF_MAX_PAGES,
// PDF_MAX_BYTES and PDF_MAX_TIME_MS environment variables.
type Limits struct {
	MaxPages int
	MaxBytes int
	MaxTimeMs int
}

// Extract recovers plain text from data according to mime ("md", "pdf", or
// anything else, treated as already-plain text).
func Extract(data []byte, mime string, limits Limits) (string, error) {
	switch mime {
	case "pdf":
		return ExtractPDF(data, limits)
	case "md", "markdown":
		return ExtractMarkdown(string(data)), nil
	default:
		return string(data), nil
	}
}

func errUnreadable(cause error, path string) error {
	return apperr.NotFoundf("failed to read document from %s", path).WithDetail("cause", cause)
}
