package analysis

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// maxDimension caps the longest image side before upload; newer backend
	// contracts reject larger embedded images.
	maxDimension = 768
	jpegQuality  = 60
)

// EncodedPhoto is a photo prepared for transport: downscaled JPEG bytes, the
// equivalent base64 data-URL for embedded contracts, and the file URI once a
// discrete upload has assigned one.
type EncodedPhoto struct {
	JPEG    []byte
	DataURL string
	FileURI string
}

// Fingerprint is a content hash of the raw capture, used only to correlate
// log lines across one run. It is not a cache key.
func (p CapturedPhoto) Fingerprint() string {
	sum := sha256.Sum256(p.ImageData)
	return hex.EncodeToString(sum[:])
}

// PreparePhoto decodes the capture, downscales the longest side to at most
// 768px, and re-encodes as JPEG quality 60. Bytes that do not decode as an
// image pass through untouched; the transport decides whether it can use
// them.
func PreparePhoto(photo CapturedPhoto) (EncodedPhoto, error) {
	src, _, err := image.Decode(bytes.NewReader(photo.ImageData))
	if err != nil {
		return EncodedPhoto{
			JPEG:    photo.ImageData,
			DataURL: dataURL(photo.ImageData),
		}, nil
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxDimension || h > maxDimension {
		if w >= h {
			h = h * maxDimension / w
			w = maxDimension
		} else {
			w = w * maxDimension / h
			h = maxDimension
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return EncodedPhoto{}, err
	}
	return EncodedPhoto{
		JPEG:    buf.Bytes(),
		DataURL: dataURL(buf.Bytes()),
	}, nil
}

func dataURL(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
}
