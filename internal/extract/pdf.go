package extract

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"
	"time"
)

var (
	streamMarker    = []byte("stream")
	endStreamMarker = []byte("endstream")
	flateMarker     = []byte("FlateDecode")
)

// ExtractPDF walks the raw PDF byte stream looking for `stream`/`endstream`
// object bodies, inflates ones declared /FlateDecode, and scans the
// resulting content stream for Tj/TJ string operands — the same signal
// original_source's read_pdf_text pulls via lopdf's parsed operation list,
// reduced to a direct byte scan since no PDF object-model library is
// available in the retrieved pack (see DESIGN.md).
//
// limits bounds the walk the same way PDF_MAX_PAGES / PDF_MAX_BYTES /
// PDF_MAX_TIME_MS bound the original: each decoded stream counts as one
// "page" for MaxPages purposes, accumulated output is capped at MaxBytes,
// and the whole walk aborts once MaxTimeMs elapses.
func ExtractPDF(data []byte, limits Limits) (string, error) {
	started := time.Now()
	var out strings.Builder

	streams := splitStreams(data)
	pageCount := 0
	for _, raw := range streams {
		if limits.MaxPages > 0 && pageCount >= limits.MaxPages {
			break
		}
		if limits.MaxTimeMs > 0 && time.Since(started).Milliseconds() >= int64(limits.MaxTimeMs) {
			break
		}
		pageCount++

		content := raw.body
		if raw.flate {
			if inflated, err := inflate(raw.body); err == nil {
				content = inflated
			}
		}
		text := scanTjOperands(content)
		if text == "" {
			continue
		}
		out.WriteString(text)
		out.WriteByte('\n')

		if limits.MaxBytes > 0 && out.Len() >= limits.MaxBytes {
			break
		}
		if limits.MaxTimeMs > 0 && time.Since(started).Milliseconds() >= int64(limits.MaxTimeMs) {
			break
		}
	}

	result := out.String()
	if limits.MaxBytes > 0 && len(result) > limits.MaxBytes {
		result = result[:limits.MaxBytes]
	}
	return result, nil
}

type rawStream struct {
	body  []byte
	flate bool
}

// splitStreams finds every "<<...>> stream\n...endstream" region in data,
// recording whether its dictionary declared /FlateDecode.
func splitStreams(data []byte) []rawStream {
	var out []rawStream
	pos := 0
	for {
		dictEnd := bytes.Index(data[pos:], streamMarker)
		if dictEnd == -1 {
			break
		}
		absStart := pos + dictEnd
		dictStart := absStart - 2048
		if dictStart < 0 {
			dictStart = 0
		}
		dict := data[dictStart:absStart]
		flate := bytes.Contains(dict, flateMarker)

		bodyStart := absStart + len(streamMarker)
		for bodyStart < len(data) && (data[bodyStart] == '\r' || data[bodyStart] == '\n') {
			bodyStart++
		}
		bodyEnd := bytes.Index(data[bodyStart:], endStreamMarker)
		if bodyEnd == -1 {
			break
		}
		absEnd := bodyStart + bodyEnd
		body := data[bodyStart:absEnd]
		out = append(out, rawStream{body: append([]byte{}, body...), flate: flate})
		pos = absEnd + len(endStreamMarker)
	}
	return out
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// scanTjOperands walks content byte-by-byte, capturing parenthesized
// literal strings and keeping a run of them only when the next operator
// token is Tj or TJ (the text-showing operators); any other operator
// discards the pending run, mirroring lopdf's per-operation operand check.
func scanTjOperands(content []byte) string {
	var result strings.Builder
	var pending strings.Builder
	hasPending := false

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			s, next := readLiteralString(content, i)
			pending.WriteString(s)
			hasPending = true
			i = next
		case isAlpha(c):
			j := i
			for j < len(content) && isAlpha(content[j]) {
				j++
			}
			op := string(content[i:j])
			if hasPending && (op == "Tj" || op == "TJ") {
				result.WriteString(pending.String())
				result.WriteByte('\n')
			}
			pending.Reset()
			hasPending = false
			i = j
		default:
			i++
		}
	}
	return result.String()
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// readLiteralString decodes a PDF "(...)" literal string starting at
// content[start] == '(', honoring backslash escapes and nested
// parentheses, and returns the decoded text plus the index just past the
// closing paren.
func readLiteralString(content []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 < len(content) {
				sb.WriteByte(content[i+1])
				i += 2
				continue
			}
			i++
		case '(':
			depth++
			if depth > 1 {
				sb.WriteByte(c)
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}
