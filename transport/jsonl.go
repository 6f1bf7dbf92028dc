package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pithecene-io/concierge/types"
)

// JSONLReader decodes one JSON frame per line. Blank lines are skipped.
type JSONLReader struct {
	scanner *bufio.Scanner
}

// NewJSONLReader creates a new line-delimited frame reader.
func NewJSONLReader(r io.Reader) *JSONLReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)
	return &JSONLReader{scanner: scanner}
}

// ReadFrame reads the next frame with a known kind.
func (d *JSONLReader) ReadFrame() (*types.Frame, error) {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		var frame types.Frame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode frame line", Err: err}
		}
		if !frame.Kind.IsKnown() {
			continue
		}
		return &frame, nil
	}
	if err := d.scanner.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return nil, &FrameError{
				Kind: FrameErrorTooLarge,
				Msg:  fmt.Sprintf("frame line exceeds maximum %d", MaxFrameSize),
				Err:  err,
			}
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read frame line", Err: err}
	}
	return nil, io.EOF
}

// JSONLWriter encodes frames one per line.
type JSONLWriter struct {
	enc *json.Encoder
}

// NewJSONLWriter creates a new line-delimited frame writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(w)}
}

// WriteFrame writes one frame followed by a newline.
func (e *JSONLWriter) WriteFrame(frame *types.Frame) error {
	if err := e.enc.Encode(frame); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return nil
}
