package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/concierge/types"
)

// Frame size constants for length-prefixed framing.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// MsgpackReader decodes length-prefixed msgpack frames from a stream.
type MsgpackReader struct {
	reader io.Reader
}

// NewMsgpackReader creates a new msgpack frame reader.
func NewMsgpackReader(r io.Reader) *MsgpackReader {
	return &MsgpackReader{reader: r}
}

// ReadFrame reads the next frame with a known kind.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
//   - *FrameError with Kind=FrameErrorDecode: payload is not a frame
func (d *MsgpackReader) ReadFrame() (*types.Frame, error) {
	for {
		payload, err := d.readPayload()
		if err != nil {
			return nil, err
		}
		frame, err := DecodeMsgpackFrame(payload)
		if err != nil {
			return nil, err
		}
		if !frame.Kind.IsKnown() {
			continue
		}
		return frame, nil
	}
}

func (d *MsgpackReader) readPayload() ([]byte, error) {
	// Read 4-byte big-endian length prefix
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// DecodeMsgpackFrame decodes a single msgpack payload as a frame.
func DecodeMsgpackFrame(payload []byte) (*types.Frame, error) {
	var frame types.Frame
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame",
			Err:  err,
		}
	}
	return &frame, nil
}

// MsgpackWriter encodes frames with a length prefix.
type MsgpackWriter struct {
	writer io.Writer
}

// NewMsgpackWriter creates a new msgpack frame writer.
func NewMsgpackWriter(w io.Writer) *MsgpackWriter {
	return &MsgpackWriter{writer: w}
}

// WriteFrame encodes and writes one frame.
func (e *MsgpackWriter) WriteFrame(frame *types.Frame) error {
	buf, err := EncodeMsgpackFrame(frame)
	if err != nil {
		return err
	}
	_, err = e.writer.Write(buf)
	return err
}

// EncodeMsgpackFrame encodes a frame as a length-prefixed msgpack payload.
func EncodeMsgpackFrame(frame *types.Frame) ([]byte, error) {
	payload, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}
