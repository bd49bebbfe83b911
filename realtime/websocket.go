package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

type wsTransport struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func dialWebSocket(dialer *websocket.Dialer) transportOpener {
	return func(ctx context.Context, endpoint string, header http.Header) (Transport, error) {
		wsURL, err := toWebSocketURL(endpoint)
		if err != nil {
			return nil, err
		}
		conn, resp, err := dialer.DialContext(ctx, wsURL, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("websocket dial %s: %s: %w", wsURL, resp.Status, err)
			}
			return nil, fmt.Errorf("websocket dial %s: %w", wsURL, err)
		}
		conn.SetReadLimit(maxMessageSize)
		return &wsTransport{conn: conn}, nil
	}
}

func (t *wsTransport) Kind() TransportKind { return TransportWebSockets }

func (t *wsTransport) Read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
