package protocol

import (
	"encoding/binary"

	"github.com/hollowlog/archipelago-client/pkg/utils"
)

// Opcode is a WebSocket frame opcode as defined in RFC 6455 section 5.2.
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

const (
	finBit  byte = 0x80
	maskBit byte = 0x80

	// MaxFramePayload bounds the payload length a decoded frame may declare.
	// Length fields beyond this are treated as corrupt input.
	MaxFramePayload = 16 * 1024 * 1024

	maxControlPayload = 125
)

// Frame is a single decoded WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// IsControl reports whether the frame carries a control opcode.
func (f *Frame) IsControl() bool {
	return f.Opcode >= OpcodeClose
}

// EncodeText encodes payload as a single final text frame.
// The mask bit is always set as this is the client side of the connection.
func EncodeText(payload []byte) []byte {
	return encodeFrame(OpcodeText, payload)
}

// EncodeControl encodes a masked control frame (close, ping or pong).
func EncodeControl(opcode Opcode, payload []byte) []byte {
	return encodeFrame(opcode, payload)
}

func encodeFrame(opcode Opcode, payload []byte) []byte {
	length := len(payload)

	frame := make([]byte, 0, length+14)
	frame = append(frame, finBit|byte(opcode))

	// Three-tier length encoding, the tier is chosen deterministically
	// from the payload length.
	switch {
	case length <= 125:
		frame = append(frame, maskBit|byte(length))
	case length <= 0xffff:
		frame = append(frame, maskBit|126)
		extended := make([]byte, 2)
		binary.BigEndian.PutUint16(extended, uint16(length))
		frame = append(frame, extended...)
	default:
		frame = append(frame, maskBit|127)
		extended := make([]byte, 8)
		binary.BigEndian.PutUint64(extended, uint64(length))
		frame = append(frame, extended...)
	}

	maskKey := utils.RandomBytes(4)
	frame = append(frame, maskKey...)

	for i, b := range payload {
		frame = append(frame, b^maskKey[i%4])
	}

	return frame
}

// DecodeFrame attempts to decode a single frame from the start of buf.
// It returns the decoded frame along with the number of bytes consumed.
// A nil frame with zero consumed bytes and a nil error means the buffer
// holds only a partial frame and the caller should retry with more data.
func DecodeFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}

	fin := buf[0]&finBit != 0
	opcode := Opcode(buf[0] & 0x0f)
	masked := buf[1]&maskBit != 0
	length := uint64(buf[1] & 0x7f)

	offset := 2
	switch length {
	case 126:
		if len(buf) < offset+2 {
			return nil, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return nil, 0, nil
		}
		length = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
	}

	if length > MaxFramePayload {
		return nil, 0, errProtocol("declared payload length %d exceeds limit %d", length, MaxFramePayload)
	}
	if opcode >= OpcodeClose && length > maxControlPayload {
		return nil, 0, errProtocol("control frame declares %d byte payload, maximum is %d", length, maxControlPayload)
	}

	var maskKey []byte
	if masked {
		if len(buf) < offset+4 {
			return nil, 0, nil
		}
		maskKey = buf[offset : offset+4]
		offset += 4
	}

	if uint64(len(buf)-offset) < length {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, buf[offset:offset+int(length)])
	// Server frames arrive unmasked per RFC 6455, masked input is
	// still honored.
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	return &Frame{
		Fin:     fin,
		Opcode:  opcode,
		Payload: payload,
	}, offset + int(length), nil
}
