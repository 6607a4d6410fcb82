package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxBlurRadiusZeroCopies(t *testing.T) {
	f, err := NewFrame(2, 2, []uint8{1, 2, 3, 4})
	require.NoError(t, err)

	out := BoxBlur(f, BlurOptions{})
	assert.Equal(t, f.Pix, out.Pix)
	out.Pix[0] = 9
	assert.Equal(t, uint8(1), f.Pix[0])
}

func TestBoxBlurUniform(t *testing.T) {
	f := NewUniformFrame(33, 17, 120)
	for _, mode := range []EdgeMode{ClampEdgeMode, MirrorEdgeMode, WrapEdgeMode} {
		out := BoxBlur(f, BlurOptions{Radius: 3, Edge: mode})
		for _, v := range out.Pix {
			require.Equal(t, uint8(120), v, mode)
		}
	}
}

func TestBoxBlurImpulse(t *testing.T) {
	f := NewUniformFrame(5, 5, 0)
	f.Pix[2*5+2] = 90

	out := BoxBlur(f, BlurOptions{Radius: 1, Edge: ClampEdgeMode})
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			want := 0.0
			if x >= 1 && x <= 3 && y >= 1 && y <= 3 {
				want = 10
			}
			assert.Equal(t, want, out.At(x, y), "(%d,%d)", x, y)
		}
	}
}

func TestBoxBlurParallelMatchesSerial(t *testing.T) {
	pix := make([]uint8, 80*60)
	for i := range pix {
		pix[i] = uint8((i * 37) % 251)
	}
	f, err := NewFrame(80, 60, pix)
	require.NoError(t, err)

	serial := BoxBlur(f, BlurOptions{Radius: 2, Edge: MirrorEdgeMode})
	parallel := BoxBlur(f, BlurOptions{Radius: 2, Edge: MirrorEdgeMode, Parallel: true})
	assert.Equal(t, serial.Pix, parallel.Pix)
}

func BenchmarkBoxBlur(b *testing.B) {
	f := NewUniformFrame(1920, 1080, 128)
	for _, parallel := range []bool{false, true} {
		name := "serial"
		if parallel {
			name = "parallel"
		}
		b.Run(name, func(b *testing.B) {
			opt := BlurOptions{Radius: 2, Parallel: parallel}
			for i := 0; i < b.N; i++ {
				BoxBlur(f, opt)
			}
		})
	}
}
