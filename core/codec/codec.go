// Package codec holds the body encodings understood by request decoding and
// response encoding.
package codec

import (
	"encoding/json"
	"errors"
	"mime"
	"strings"
)

var (
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Codec encodes and decodes message bodies.
type Codec interface {
	// Encode encodes a value to bytes
	Encode(v any) ([]byte, error)

	// Decode decodes bytes to a value
	Decode(data []byte, v any) error

	// Name returns the codec name
	Name() string

	// ContentType is the media type written on responses
	ContentType() string
}

var (
	JSON     Codec = JSONCodec{}
	Protobuf Codec = ProtobufCodec{}
)

// ForContentType picks a codec from a Content-Type header value.
// An empty value selects JSON.
func ForContentType(contentType string) (Codec, error) {
	if contentType == "" {
		return JSON, nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, ErrUnsupportedCodec
	}
	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return JSON, nil
	case mediaType == "application/protobuf", mediaType == "application/x-protobuf":
		return Protobuf, nil
	default:
		return nil, ErrUnsupportedCodec
	}
}

// JSONCodec implements JSON encoding/decoding
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) ContentType() string {
	return "application/json"
}
