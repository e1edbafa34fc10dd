package domain

import (
	"image"
)

// Image is a preprocessed, encoded picture ready to be attached to a turn.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// UploadedImage is the artifact a user uploaded, decoded to a pixel buffer.
type UploadedImage struct {
	Name   string
	Digest string
	Format string
	Pixels image.Image
}

// ImageProcessor decodes uploads and prepares pixel buffers for the provider.
type ImageProcessor interface {
	Decode(data []byte) (image.Image, string, error)
	Prepare(img image.Image) (Image, error)
}

// Hasher fingerprints uploaded bytes so repeated uploads of the same file
// can be recognised in logs and events.
type Hasher interface {
	Hash(data []byte) string
}
