// Package datauri encodes and decodes the transport format used for file
// payloads: an RFC 2397 data URI, or a bare base64 segment.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMalformed is returned when a payload is neither a data URI nor base64.
var ErrMalformed = errors.New("malformed data uri")

const defaultMediaType = "text/plain;charset=US-ASCII"

// Encode returns data as a base64 data URI with the given media type.
func Encode(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode returns the bytes and media type carried by s. A string without
// the "data:" scheme is decoded as plain base64 with an empty media type.
func Decode(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		data, err := decodeBase64(s)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return data, "", nil
	}

	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing comma", ErrMalformed)
	}

	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if mediaType == "" {
		mediaType = defaultMediaType
	}

	if isBase64 {
		if payload == "" {
			return []byte{}, mediaType, nil
		}
		data, err := decodeBase64(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return data, mediaType, nil
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return []byte(text), mediaType, nil
}

// decodeBase64 accepts padded and unpadded standard base64. An empty bare
// segment is rejected; inside a data URI it is a valid zero-length payload.
func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty payload")
	}
	if strings.HasSuffix(s, "=") || len(s)%4 == 0 {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
