package storage

import (
	"bytes"
	"errors"
)

var (
	ErrUnknownType = errors.New("unsupported image type")
	ErrEmptyObject = errors.New("empty object")
	ErrTooLarge    = errors.New("object exceeds size limit")
)

type ImageKind struct {
	Ext  string
	MIME string
}

var (
	KindJPEG = ImageKind{Ext: "jpg", MIME: "image/jpeg"}
	KindPNG  = ImageKind{Ext: "png", MIME: "image/png"}
	KindGIF  = ImageKind{Ext: "gif", MIME: "image/gif"}
	KindWEBP = ImageKind{Ext: "webp", MIME: "image/webp"}
)

// DetectImage identifies a raster image from its leading bytes. SVG and
// other markup is rejected since avatars are served from a public bucket.
func DetectImage(head []byte) (ImageKind, error) {
	switch {
	case isJPEG(head):
		return KindJPEG, nil
	case isPNG(head):
		return KindPNG, nil
	case isGIF(head):
		return KindGIF, nil
	case isWEBP(head):
		return KindWEBP, nil
	}
	return ImageKind{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}
