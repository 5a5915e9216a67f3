package metadata

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
)

func TestHasMarker_NoExif(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatal(err)
	}
	if HasMarker(&buf) {
		t.Errorf("HasMarker() = true for a JPEG without EXIF")
	}
}

func TestHasMarker_NotAnImage(t *testing.T) {
	if HasMarker(bytes.NewReader([]byte("plain text"))) {
		t.Errorf("HasMarker() = true for non-image data")
	}
}
