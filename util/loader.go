// Package util loads numbered frame sequences from disk.
package util

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-track/images"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
)

// framePrefix is the file name prefix of every frame in a sequence directory.
const framePrefix = "frame-"

// ErrFrameName is returned for image files not named frame-<n>.<ext>.
var ErrFrameName = errors.New("invalid frame file name")

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Index is the frame number of the image file.
	Index int
}

// Decode decodes the file into a grayscale frame.
func (f ImageFile) Decode() (*images.Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", f.Path)
	}
	return images.FromImage(img), nil
}

// ParseFrameIndex extracts n from a file name of the form frame-<n>.<ext>.
func ParseFrameIndex(name string) (int, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if !strings.HasPrefix(base, framePrefix) {
		return 0, errors.Wrapf(ErrFrameName, "%q", name)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, framePrefix))
	if err != nil || n < 0 {
		return 0, errors.Wrapf(ErrFrameName, "%q", name)
	}
	return n, nil
}

// isImage reports whether the extension is one of the supported image formats.
func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Arguments:
// - dir: Directory path containing frame-<n>.<ext> image files.
//
// Returns:
// - []ImageFile: The image files ordered by frame number.
// - error: Error if reading fails or an image file is misnamed.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading frame directory")
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !isImage(entry.Name()) {
			continue
		}

		index, err := ParseFrameIndex(entry.Name())
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		files = append(files, ImageFile{Path: path, Data: data, Index: index})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Index < files[j].Index
	})

	return files, nil
}
