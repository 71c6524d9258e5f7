// Package vecmath implements the C2 Vector Math component: cosine
// similarity and little-endian f32 vector packing, grounded on
// original_source/server/src/vector_index.rs's cosine_similarity.
package vecmath

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Cosine computes cosine similarity between a and b, comparing only the
// overlapping prefix if lengths differ. Zero-magnitude vectors return 0
// rather than NaN.
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Pack little-endian-encodes a f32 vector into exactly len(v)*4 bytes.
func Pack(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// Unpack decodes a packed f32 vector. It errors if len(data) is not a
// multiple of 4; callers that only want to skip invalid-dimension entries
// should check len(data) against the expected D*4 directly instead, per
// spec.md §4.6 ("entries with unexpected length are skipped").
func Unpack(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vecmath: packed vector length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// ValidDim reports whether data is exactly dim*4 bytes, i.e. a well-formed
// packed vector of dimension dim.
func ValidDim(data []byte, dim int) bool {
	return len(data) == dim*4
}

// ErrDimMismatch builds the error returned when a caller supplies a vector
// whose length does not match the configured embedding dimension.
func ErrDimMismatch(want, got int) error {
	return fmt.Errorf("vecmath: expected dimension %d, got %d", want, got)
}
