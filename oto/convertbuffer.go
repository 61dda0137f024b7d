package oto

import (
	"encoding/binary"
	"math"
)

// FloatBufferToLE appends buff to dst as 32-bit little-endian floats, the
// sample format the audio device is opened with. Samples are clamped to
// [-1, 1].
func FloatBufferToLE(buff []float32, dst []byte) []byte {
	for _, v := range buff {
		v = min(max(v, -1), 1)
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
