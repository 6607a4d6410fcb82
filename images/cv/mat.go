// Package cv converts between OpenCV matrices (via gocv) and frames.
//
// Video capture, decoding and display stay on the gocv side. The tracking core
// only ever sees images.Frame values and builds without cgo, so every
// conversion here copies the pixel data out of the native Mat and the caller
// remains free to Close it.
package cv

import (
	"github.com/nvr-ai/go-track/features"
	"github.com/nvr-ai/go-track/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// FromMat converts a gocv.Mat into a Frame.
//
// Single-channel 8-bit matrices are copied as-is. BGR and BGRA matrices, as
// returned by VideoCapture.Read, are converted to grayscale first.
//
// Arguments:
//   - mat: The source matrix. It is not modified or closed.
//
// Returns:
//   - *images.Frame: A frame owning a copy of the pixel data.
//   - error: ErrInvalidInput for empty or unsupported matrices.
//
// @example
// webcam.Read(&img)
// frame, err := cv.FromMat(img)
func FromMat(mat gocv.Mat) (*images.Frame, error) {
	if mat.Empty() {
		return nil, errors.Wrap(features.ErrInvalidInput, "mat is empty")
	}

	src := mat
	switch mat.Channels() {
	case 1:
	case 3, 4:
		code := gocv.ColorBGRToGray
		if mat.Channels() == 4 {
			code = gocv.ColorBGRAToGray
		}
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(mat, &gray, code)
		if gray.Empty() {
			return nil, errors.New("grayscale conversion failed")
		}
		src = gray
	default:
		return nil, errors.Wrapf(features.ErrInvalidInput, "unsupported channel count %d", mat.Channels())
	}

	if src.Type() != gocv.MatTypeCV8UC1 {
		return nil, errors.Wrapf(features.ErrInvalidInput, "unsupported mat type %v", src.Type())
	}

	// Regions of interest are not continuous in memory.
	if !src.IsContinuous() {
		dense := src.Clone()
		defer dense.Close()
		src = dense
	}

	data, err := src.DataPtrUint8()
	if err != nil {
		return nil, errors.Wrap(err, "reading mat data failed")
	}
	return images.NewFrame(src.Cols(), src.Rows(), data)
}

// DecodeFrame decodes an encoded image (JPEG, PNG, BMP) directly to a grayscale frame.
//
// Arguments:
//   - data: The encoded image bytes.
//
// Returns:
//   - *images.Frame: The decoded frame.
//   - error: An error if decoding fails.
func DecodeFrame(data []byte) (*images.Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadGrayScale)
	if err != nil {
		return nil, errors.Wrap(err, "image decoding failed")
	}
	defer mat.Close()
	return FromMat(mat)
}

// ToMat copies the frame into a new single-channel gocv.Mat. The caller must Close it.
func ToMat(f *images.Frame) (gocv.Mat, error) {
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, f.Pix)
}
