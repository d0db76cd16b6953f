package discord

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Opcode represents a Discord IPC frame opcode.
type Opcode uint32

const (
	// OpHandshake is the opcode for the initial IPC handshake.
	OpHandshake Opcode = 0
	// OpFrame is the opcode for a command or event frame.
	OpFrame Opcode = 1
	// OpClose is the opcode for closing the IPC connection.
	OpClose Opcode = 2
	// OpPing is sent by the remote to check liveness.
	OpPing Opcode = 3
	// OpPong answers an [OpPing] with the same payload.
	OpPong Opcode = 4

	// frameHeaderSize is the byte length of the IPC frame header
	// consisting of a 4-byte little-endian opcode followed by a
	// 4-byte little-endian payload length.
	frameHeaderSize = 8

	// MaxPayloadSize is the largest payload the codec accepts (64 KiB).
	MaxPayloadSize = 64 << 10

	// maxIPCSlots is the number of IPC socket slots Discord may listen on (0-9).
	maxIPCSlots = 10
)

// String returns the protocol name of the opcode.
func (o Opcode) String() string {
	switch o {
	case OpHandshake:
		return "HANDSHAKE"
	case OpFrame:
		return "FRAME"
	case OpClose:
		return "CLOSE"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	default:
		return fmt.Sprintf("OPCODE(%d)", uint32(o))
	}
}

// requiresJSON reports whether frames with this opcode must carry a JSON document.
func (o Opcode) requiresJSON() bool {
	return o == OpHandshake || o == OpFrame || o == OpClose
}

// ErrMalformedFrame is returned when bytes cannot be decoded into a valid frame.
var ErrMalformedFrame = errors.New("malformed frame")

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
// It wraps [ErrMalformedFrame].
var ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrMalformedFrame)

// Frame is a single decoded IPC message.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// ///////////////////////////////////////////////
// Frame Encoding
// ///////////////////////////////////////////////

// EncodeFrame builds a Discord IPC frame: [4-byte LE opcode][4-byte LE length][payload].
func EncodeFrame(opcode Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	if err := validatePayload(opcode, payload); err != nil {
		return nil, err
	}
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(opcode))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	return frame, nil
}

// ///////////////////////////////////////////////
// Frame Decoding
// ///////////////////////////////////////////////

// DecodeFrame decodes the first frame in buf and reports how many bytes it
// consumed. Trailing bytes after the frame are left for the next call.
func DecodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < frameHeaderSize {
		return Frame{}, 0, fmt.Errorf("%w: header needs %d bytes, have %d", ErrMalformedFrame, frameHeaderSize, len(buf))
	}
	opcode, length, err := parseHeader(buf[:frameHeaderSize])
	if err != nil {
		return Frame{}, 0, err
	}
	end := frameHeaderSize + int(length)
	if len(buf) < end {
		return Frame{}, 0, fmt.Errorf("%w: payload truncated at %d of %d bytes", ErrMalformedFrame, len(buf)-frameHeaderSize, length)
	}
	payload := make([]byte, length)
	copy(payload, buf[frameHeaderSize:end])
	if err := validatePayload(opcode, payload); err != nil {
		return Frame{}, 0, err
	}
	return Frame{Opcode: opcode, Payload: payload}, end, nil
}

// ReadFrame reads a single Discord IPC frame from reader.
// It handles partial reads via io.ReadFull. An oversized length is rejected
// before any payload byte is read.
func ReadFrame(reader io.Reader) (Frame, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(reader, header); err != nil {
		return Frame{}, fmt.Errorf("reading frame header: %w", err)
	}
	opcode, length, err := parseHeader(header)
	if err != nil {
		return Frame{}, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return Frame{}, fmt.Errorf("reading frame payload: %w", err)
	}
	if err := validatePayload(opcode, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Opcode: opcode, Payload: payload}, nil
}

// parseHeader splits an 8-byte header and enforces the payload cap.
func parseHeader(header []byte) (Opcode, uint32, error) {
	opcode := Opcode(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > MaxPayloadSize {
		return 0, 0, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, length, MaxPayloadSize)
	}
	return opcode, length, nil
}

// validatePayload checks that JSON-bearing opcodes carry valid UTF-8 JSON.
func validatePayload(opcode Opcode, payload []byte) error {
	if !opcode.requiresJSON() {
		return nil
	}
	if !utf8.Valid(payload) {
		return fmt.Errorf("%w: %s payload is not valid UTF-8", ErrMalformedFrame, opcode)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: %s payload is not valid JSON", ErrMalformedFrame, opcode)
	}
	return nil
}
