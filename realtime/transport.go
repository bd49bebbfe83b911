package realtime

import (
	"context"
	"net/http"
)

type TransportKind string

const (
	TransportWebSockets       TransportKind = "WebSockets"
	TransportServerSentEvents TransportKind = "ServerSentEvents"
	TransportLongPolling      TransportKind = "LongPolling"
)

// Transport is one established byte channel to the hub. Read blocks until
// data arrives or the transport is closed; Close is safe to call twice.
type Transport interface {
	Kind() TransportKind
	Send(ctx context.Context, data []byte) error
	Read() ([]byte, error)
	Close() error
}

type transportOpener func(ctx context.Context, endpoint string, header http.Header) (Transport, error)

// Tier is one step of the transport cascade.
type Tier struct {
	Name            string
	SkipNegotiation bool
	Transports      []TransportKind
}

// DefaultTiers is the fixed cascade: direct WebSocket, then negotiated
// streaming transports, then anything the hub offers.
var DefaultTiers = []Tier{
	{Name: "direct-websocket", SkipNegotiation: true, Transports: []TransportKind{TransportWebSockets}},
	{Name: "negotiated-streaming", Transports: []TransportKind{TransportWebSockets, TransportServerSentEvents}},
	{Name: "negotiated-any", Transports: []TransportKind{TransportWebSockets, TransportServerSentEvents, TransportLongPolling}},
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func copyHeader(req *http.Request, header http.Header) {
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
