package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRect(t *testing.T) {
	r, err := parseRect("10, 20,30,40")
	require.NoError(t, err)
	assert.Equal(t, images.Rect{Top: 10, Left: 20, Width: 30, Height: 40}, r)

	for _, bad := range []string{"", "1,2,3", "1,2,3,x", "1,2,0,4"} {
		_, err := parseRect(bad)
		assert.Error(t, err, bad)
	}
}

func TestWriteTrajectory(t *testing.T) {
	centres := []features.Point{{X: 10, Y: 10}, {X: 12, Y: 11}, {X: 15, Y: 13}}

	for _, name := range []string{"path.png", "path.svg"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, writeTrajectory(path, centres, 2))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	assert.Error(t, writeTrajectory(filepath.Join(t.TempDir(), "empty.png"), nil, -1))
}
