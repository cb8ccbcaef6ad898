package store

import (
	"encoding/binary"
	"math"

	"github.com/florinutz/narra-core/internal/model"
)

// encodeVector lays a vector out as sqlite-vec expects it: raw
// little-endian float32 bytes, no header. nil/empty vectors encode
// to a nil blob so the column stores SQL NULL.
func encodeVector(v model.Vector) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) model.Vector {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	out := make(model.Vector, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
