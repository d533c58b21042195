package video

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"regexp"
)

var (
	// ErrInvalidBase64 is returned for payloads that are not base64 text.
	ErrInvalidBase64 = errors.New("invalid base64 frame data")

	// ErrDecode is returned when the decoded bytes are not a readable image.
	ErrDecode = errors.New("failed to decode frame image")
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)

// DecodeFrame validates a base64 frame payload and decodes the image in it.
// It returns the image together with the raw encoded bytes.
func DecodeFrame(payload string) (image.Image, []byte, error) {
	if !base64Pattern.MatchString(payload) {
		return nil, nil, ErrInvalidBase64
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return img, data, nil
}
