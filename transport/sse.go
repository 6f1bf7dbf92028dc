package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pithecene-io/concierge/types"
)

// sseDoneSentinel is the OpenAI-style end marker some backends send
// instead of a typed done frame.
const sseDoneSentinel = "[DONE]"

// SSEReader decodes a text/event-stream body. Each event's data lines are
// joined and decoded as a JSON frame; the event name fills in the kind
// when the payload does not carry one.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new event-stream frame reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadFrame reads the next event with a known frame kind.
// Comments, retry hints and unknown events are skipped.
func (s *SSEReader) ReadFrame() (*types.Frame, error) {
	for {
		event, data, err := s.readEvent()
		if err != nil {
			return nil, err
		}
		frame, err := decodeSSEEvent(event, data)
		if err != nil {
			return nil, err
		}
		if frame == nil || !frame.Kind.IsKnown() {
			continue
		}
		return frame, nil
	}
}

// readEvent accumulates lines until a blank line dispatches the event.
// A stream that ends mid-event dispatches what it has. The joined data of
// one event is capped at MaxFrameSize.
func (s *SSEReader) readEvent() (event string, data []string, err error) {
	seen := false
	size := 0
	for {
		line, readErr := s.readLine()
		if readErr != nil && readErr != io.EOF {
			return "", nil, readErr
		}

		if line == "" {
			if seen {
				return event, data, nil
			}
			if readErr == io.EOF {
				return "", nil, io.EOF
			}
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "":
			// comment line
		case "event":
			event = value
			seen = true
		case "data":
			size += len(value) + 1
			if size > MaxFrameSize {
				return "", nil, &FrameError{
					Kind: FrameErrorTooLarge,
					Msg:  fmt.Sprintf("event data exceeds maximum %d", MaxFrameSize),
				}
			}
			data = append(data, value)
			seen = true
		}

		if readErr == io.EOF {
			if seen {
				return event, data, nil
			}
			return "", nil, io.EOF
		}
	}
}

// readLine returns the next line without its terminator. It fails as soon
// as the line grows past MaxFrameSize instead of buffering it whole.
// io.EOF is returned with the final unterminated line, if any.
func (s *SSEReader) readLine() (string, error) {
	var line []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if len(line)+len(chunk) > MaxFrameSize {
			return "", &FrameError{
				Kind: FrameErrorTooLarge,
				Msg:  fmt.Sprintf("event line exceeds maximum %d", MaxFrameSize),
			}
		}
		line = append(line, chunk...)

		switch {
		case err == nil, err == io.EOF:
			return strings.TrimRight(string(line), "\r\n"), err
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return "", &FrameError{Kind: FrameErrorPartial, Msg: "failed to read event stream", Err: err}
		}
	}
}

func decodeSSEEvent(event string, data []string) (*types.Frame, error) {
	payload := strings.Join(data, "\n")
	if strings.TrimSpace(payload) == sseDoneSentinel {
		f := types.DoneFrame("")
		return &f, nil
	}

	var frame types.Frame
	if strings.TrimSpace(payload) != "" {
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			return nil, &FrameError{
				Kind: FrameErrorDecode,
				Msg:  fmt.Sprintf("failed to decode %q event data", event),
				Err:  err,
			}
		}
	}
	if frame.Kind == "" {
		frame.Kind = types.FrameKind(event)
	}
	if frame.Kind == "" {
		return nil, nil
	}
	return &frame, nil
}

// SSEWriter encodes frames as text/event-stream events.
type SSEWriter struct {
	writer io.Writer
}

// NewSSEWriter creates a new event-stream frame writer.
func NewSSEWriter(w io.Writer) *SSEWriter {
	return &SSEWriter{writer: w}
}

// WriteFrame writes one event named after the frame kind.
func (e *SSEWriter) WriteFrame(frame *types.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\ndata: %s\n\n", frame.Kind, data)
	_, err = e.writer.Write(buf.Bytes())
	return err
}
