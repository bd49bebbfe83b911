package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const recordSeparator byte = 0x1e

// MessageType is the "type" field of a hub protocol message.
type MessageType int

const (
	TypeInvocation       MessageType = 1
	TypeStreamItem       MessageType = 2
	TypeCompletion       MessageType = 3
	TypeStreamInvocation MessageType = 4
	TypeCancelInvocation MessageType = 5
	TypePing             MessageType = 6
	TypeClose            MessageType = 7
)

type HubMessage struct {
	Type           MessageType       `json:"type"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

func encodeFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode hub frame: %w", err)
	}
	return append(data, recordSeparator), nil
}

func handshakeFrame() []byte {
	frame, _ := encodeFrame(handshakeRequest{Protocol: "json", Version: 1})
	return frame
}

func pingFrame() []byte {
	frame, _ := encodeFrame(HubMessage{Type: TypePing})
	return frame
}

// frameBuffer splits a byte stream into record-separated frames. A chunk may
// carry several frames or end in the middle of one.
type frameBuffer struct {
	pending []byte
}

func (b *frameBuffer) Write(chunk []byte) [][]byte {
	b.pending = append(b.pending, chunk...)

	var frames [][]byte
	for {
		i := bytes.IndexByte(b.pending, recordSeparator)
		if i < 0 {
			break
		}
		frame := make([]byte, i)
		copy(frame, b.pending[:i])
		b.pending = b.pending[i+1:]
		if len(bytes.TrimSpace(frame)) > 0 {
			frames = append(frames, frame)
		}
	}
	if len(b.pending) == 0 {
		b.pending = nil
	}
	return frames
}
