package extraction

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"
)

// isPNGData checks for the PNG magic bytes
func isPNGData(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
}

// prepareImageData normalizes the MIME type and converts the image to PNG if
// needed. Returns the final image data and whether conversion occurred.
// Intake only admits JPEG and PNG, so the decoder set here is intentionally
// small.
func prepareImageData(imageData []byte, contentType string) ([]byte, bool, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	if mimeType == "image/png" || isPNGData(imageData) {
		return imageData, false, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, false, fmt.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), true, nil
}
