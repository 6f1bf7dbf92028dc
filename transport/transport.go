// Package transport decodes streamed agent responses into frames.
//
// Three wire framings are supported:
//   - sse: text/event-stream with JSON data lines
//   - msgpack: 4-byte big-endian length prefix + msgpack payload
//   - jsonl: one JSON frame per line (recordings)
//
// Readers yield frames in arrival order and return io.EOF when the
// stream ends cleanly. Frames with unknown kinds are skipped.
package transport

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/pithecene-io/concierge/types"
)

// FrameReader yields decoded frames in arrival order.
//
// Errors:
//   - io.EOF: stream ended cleanly
//   - *FrameError: framing or decode failure
type FrameReader interface {
	ReadFrame() (*types.Frame, error)
}

// FrameWriter encodes frames onto a stream.
type FrameWriter interface {
	WriteFrame(frame *types.Frame) error
}

// Format names a wire framing.
type Format string

// Supported formats.
const (
	FormatSSE     Format = "sse"
	FormatMsgpack Format = "msgpack"
	FormatJSONL   Format = "jsonl"
)

// Content types per format.
const (
	ContentTypeSSE     = "text/event-stream"
	ContentTypeMsgpack = "application/x-msgpack"
	ContentTypeJSONL   = "application/x-ndjson"
)

// ErrUnsupportedContentType is returned by NewReader for unknown media types.
var ErrUnsupportedContentType = errors.New("unsupported stream content type")

// ParseFormat parses a format name. An empty name means sse.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case "", FormatSSE:
		return FormatSSE, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown transport format %q (want sse, msgpack, or jsonl)", name)
	}
}

// ContentType returns the media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatMsgpack:
		return ContentTypeMsgpack
	case FormatJSONL:
		return ContentTypeJSONL
	default:
		return ContentTypeSSE
	}
}

// NewReader picks a frame reader for a response content type.
func NewReader(contentType string, r io.Reader) (FrameReader, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	switch mediaType {
	case ContentTypeSSE:
		return NewSSEReader(r), nil
	case ContentTypeMsgpack, "application/msgpack", "application/vnd.msgpack":
		return NewMsgpackReader(r), nil
	case ContentTypeJSONL, "application/jsonl", "application/x-jsonlines":
		return NewJSONLReader(r), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, mediaType)
	}
}

// NewFormatReader returns a reader for a named format.
func NewFormatReader(f Format, r io.Reader) FrameReader {
	switch f {
	case FormatMsgpack:
		return NewMsgpackReader(r)
	case FormatJSONL:
		return NewJSONLReader(r)
	default:
		return NewSSEReader(r)
	}
}

// NewFormatWriter returns a writer for a named format.
func NewFormatWriter(f Format, w io.Writer) FrameWriter {
	switch f {
	case FormatMsgpack:
		return NewMsgpackWriter(w)
	case FormatJSONL:
		return NewJSONLWriter(w)
	default:
		return NewSSEWriter(w)
	}
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a payload that could not be decoded.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot continue after this error.
// Partial and oversized frames leave the reader out of sync.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// IsDecodeError returns true if the error is a payload decode failure.
func IsDecodeError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorDecode
	}
	return false
}
