package oto_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/vsariola/kappale/oto"
)

type counter int

func (c *counter) Tick() error {
	*c++
	return nil
}

func TestTickReaderTicksPerFrames(t *testing.T) {
	tests := []struct {
		perTick, frames, reads, want int
	}{
		{perTick: 100, frames: 100, reads: 3, want: 3},
		{perTick: 100, frames: 30, reads: 10, want: 3},
		{perTick: 10, frames: 35, reads: 2, want: 7},
		{perTick: 0, frames: 4, reads: 1, want: 4},
	}
	for _, tt := range tests {
		var c counter
		r := oto.NewTickReader(&c, func() int { return tt.perTick }, nil)
		p := make([]byte, tt.frames*oto.Channels*4)
		for range tt.reads {
			n, err := r.Read(p)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if n != len(p) {
				t.Fatalf("Read returned %d bytes, expected %d", n, len(p))
			}
		}
		if int(c) != tt.want {
			t.Errorf("%d frames per tick, %d reads of %d frames: %d ticks, expected %d", tt.perTick, tt.reads, tt.frames, c, tt.want)
		}
	}
}

func TestTickReaderRendersSilence(t *testing.T) {
	var c counter
	r := oto.NewTickReader(&c, func() int { return 1 << 20 }, nil)
	p := make([]byte, 64)
	for i := range p {
		p[i] = 0xff
	}
	if _, err := r.Read(p); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, b := range p {
		if b != 0 {
			t.Fatalf("byte %d is %#x, expected silence", i, b)
		}
	}
}

func TestFloatBufferToLE(t *testing.T) {
	got := oto.FloatBufferToLE([]float32{0.5, -2, 3}, nil)
	want := []float32{0.5, -1, 1}
	if len(got) != 4*len(want) {
		t.Fatalf("got %d bytes, expected %d", len(got), 4*len(want))
	}
	for i, w := range want {
		if v := math.Float32frombits(binary.LittleEndian.Uint32(got[4*i:])); v != w {
			t.Errorf("sample %d is %v, expected %v", i, v, w)
		}
	}
}
