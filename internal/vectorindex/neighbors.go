package vectorindex

import (
	"encoding/binary"
	"math"
)

// encodeNeighbors serializes a neighbor list as a flat sequence of
// [uint16 idLen][id bytes][float32 score] records.
func encodeNeighbors(neigh []Scored) []byte {
	size := 0
	for _, n := range neigh {
		size += 2 + len(n.ID) + 4
	}
	buf := make([]byte, 0, size)
	for _, n := range neigh {
		var idLen [2]byte
		binary.LittleEndian.PutUint16(idLen[:], uint16(len(n.ID)))
		buf = append(buf, idLen[:]...)
		buf = append(buf, n.ID...)
		var score [4]byte
		binary.LittleEndian.PutUint32(score[:], math.Float32bits(n.Score))
		buf = append(buf, score[:]...)
	}
	return buf
}

// decodeNeighbors parses the format written by encodeNeighbors, skipping
// any trailing malformed bytes rather than erroring.
func decodeNeighbors(data []byte) []Scored {
	var out []Scored
	off := 0
	for off+2 <= len(data) {
		idLen := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
		if off+idLen+4 > len(data) {
			break
		}
		id := string(data[off : off+idLen])
		off += idLen
		bits := binary.LittleEndian.Uint32(data[off:])
		off += 4
		out = append(out, Scored{ID: id, Score: math.Float32frombits(bits)})
	}
	return out
}
