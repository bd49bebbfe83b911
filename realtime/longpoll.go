package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const pollTimeout = 100 * time.Second

type longPollTransport struct {
	client   *http.Client
	endpoint string
	header   http.Header

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func openLongPolling(client *http.Client) transportOpener {
	return func(ctx context.Context, endpoint string, header http.Header) (Transport, error) {
		// The first poll only confirms the connection token was accepted.
		data, status, err := poll(ctx, client, endpoint, header)
		if err != nil {
			return nil, fmt.Errorf("long polling connect: %w", err)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("long polling connect: unexpected status %d", status)
		}

		pollCtx, cancel := context.WithCancel(context.Background())
		t := &longPollTransport{
			client:   client,
			endpoint: endpoint,
			header:   header,
			ctx:      pollCtx,
			cancel:   cancel,
		}
		if len(data) > 0 {
			return &bufferedTransport{Transport: t, first: data}, nil
		}
		return t, nil
	}
}

func (t *longPollTransport) Kind() TransportKind { return TransportLongPolling }

func (t *longPollTransport) Read() ([]byte, error) {
	for {
		if t.ctx.Err() != nil {
			return nil, ErrTransportClosed
		}
		reqCtx, cancel := context.WithTimeout(t.ctx, pollTimeout)
		data, status, err := poll(reqCtx, t.client, t.endpoint, t.header)
		cancel()
		if err != nil {
			if t.ctx.Err() != nil {
				return nil, ErrTransportClosed
			}
			if reqCtx.Err() == context.DeadlineExceeded {
				continue
			}
			return nil, err
		}

		switch {
		case status == http.StatusNoContent:
			return nil, io.EOF
		case status != http.StatusOK:
			return nil, fmt.Errorf("long polling: unexpected status %d", status)
		case len(data) == 0:
			continue
		}
		return data, nil
	}
}

func (t *longPollTransport) Send(ctx context.Context, data []byte) error {
	return postData(ctx, t.client, t.endpoint, t.header, data)
}

func (t *longPollTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.endpoint, nil)
		if err != nil {
			return
		}
		copyHeader(req, t.header)
		if resp, err := t.client.Do(req); err == nil {
			resp.Body.Close()
		}
	})
	return nil
}

func poll(ctx context.Context, client *http.Client, endpoint string, header http.Header) ([]byte, int, error) {
	target := withQuery(endpoint, map[string]string{"_": strconv.FormatInt(time.Now().UnixNano(), 10)})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	copyHeader(req, header)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// bufferedTransport replays data that arrived while the transport was
// being opened before reading from the wrapped transport.
type bufferedTransport struct {
	Transport
	mu    sync.Mutex
	first []byte
}

func (t *bufferedTransport) Read() ([]byte, error) {
	t.mu.Lock()
	data := t.first
	t.first = nil
	t.mu.Unlock()
	if data != nil {
		return data, nil
	}
	return t.Transport.Read()
}
