package metadata

import (
	"fmt"
	"io"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
)

// Software is the EXIF Software value stamped onto optimized JPEGs.
const Software = "image-optimizer"

// CopiedTags are carried over from the original file.
// Orientation is not copied because pixels are already auto-oriented.
var CopiedTags = []string{
	"Make",
	"Model",
	"LensModel",
	"DateTimeOriginal",
	"CreateDate",
	"Artist",
	"Copyright",
	"ImageDescription",
}

// HasMarker reports whether the EXIF Software tag read from r contains Software.
func HasMarker(r io.Reader) bool {
	x, err := exif.Decode(r)
	if err != nil {
		return false
	}
	tag, err := x.Get(exif.Software)
	if err != nil {
		return false
	}
	val, err := tag.StringVal()
	if err != nil {
		return false
	}
	return strings.Contains(val, Software)
}

// Writer copies metadata between files.
type Writer interface {
	CopyAndStamp(src, dst string) error
}

// ExifToolWriter writes metadata with a local exiftool installation.
type ExifToolWriter struct{}

// NewExifToolWriter returns a Writer backed by exiftool.
func NewExifToolWriter() *ExifToolWriter {
	return &ExifToolWriter{}
}

// CopyAndStamp copies CopiedTags from src onto dst and sets Software.
func (w *ExifToolWriter) CopyAndStamp(src, dst string) error {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return fmt.Errorf("start exiftool: %w", err)
	}
	defer et.Close()

	read := et.ExtractMetadata(src)
	if len(read) != 1 {
		return fmt.Errorf("exiftool returned %d entries, want 1", len(read))
	}
	if read[0].Err != nil {
		return fmt.Errorf("read metadata of %s: %w", src, read[0].Err)
	}

	target := exiftool.FileMetadata{File: dst, Fields: make(map[string]interface{})}
	for _, tag := range CopiedTags {
		if v, err := read[0].GetString(tag); err == nil && v != "" {
			target.SetString(tag, v)
		}
	}
	target.SetString("Software", Software)

	written := []exiftool.FileMetadata{target}
	et.WriteMetadata(written)
	if written[0].Err != nil {
		return fmt.Errorf("write metadata of %s: %w", dst, written[0].Err)
	}
	return nil
}
