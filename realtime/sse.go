package realtime

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

type sseTransport struct {
	client   *http.Client
	endpoint string
	header   http.Header

	body      io.ReadCloser
	reader    *bufio.Reader
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func openServerSentEvents(client *http.Client) transportOpener {
	return func(ctx context.Context, endpoint string, header http.Header) (Transport, error) {
		// The stream outlives the connect context, so only tie the two
		// together until the response headers arrive.
		streamCtx, cancel := context.WithCancel(context.Background())
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			cancel()
			return nil, err
		}
		copyHeader(req, header)
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := client.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("sse connect: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("sse connect: unexpected status %s", resp.Status)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("sse connect: unexpected content type %q", ct)
		}

		return &sseTransport{
			client:   client,
			endpoint: endpoint,
			header:   header,
			body:     resp.Body,
			reader:   bufio.NewReader(resp.Body),
			cancel:   cancel,
		}, nil
	}
}

func (t *sseTransport) Kind() TransportKind { return TransportServerSentEvents }

// Read returns the data of the next event, joining multi-line data fields.
func (t *sseTransport) Read() ([]byte, error) {
	var data []string
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			if len(data) > 0 && line == "" {
				return []byte(strings.Join(data, "\n")), nil
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				return []byte(strings.Join(data, "\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field == "data" {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
}

func (t *sseTransport) Send(ctx context.Context, data []byte) error {
	return postData(ctx, t.client, t.endpoint, t.header, data)
}

func (t *sseTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.body.Close()
	})
	return nil
}

func postData(ctx context.Context, client *http.Client, endpoint string, header http.Header, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	copyHeader(req, header)
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send: unexpected status %s", resp.Status)
	}
	return nil
}
