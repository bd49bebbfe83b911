package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Channel is a transport that completed the hub handshake.
type Channel struct {
	transport Transport
	address   string
	frames    frameBuffer
	pending   [][]byte
}

func (c *Channel) Kind() TransportKind { return c.transport.Kind() }

func (c *Channel) Address() string { return c.address }

func (c *Channel) Close() error { return c.transport.Close() }

type dialFunc func(ctx context.Context, address string, tier Tier, token string) (*Channel, error)

// Probe walks the transport cascade and returns the first channel whose
// handshake succeeds.
type Probe struct {
	client           *http.Client
	openers          map[TransportKind]transportOpener
	handshakeTimeout time.Duration
	log              zerolog.Logger
	dial             dialFunc
}

func NewProbe(opts Options, log zerolog.Logger) *Probe {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	dialer := opts.WebSocketDialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		}
	}

	p := &Probe{
		client: client,
		openers: map[TransportKind]transportOpener{
			TransportWebSockets:       dialWebSocket(dialer),
			TransportServerSentEvents: openServerSentEvents(client),
			TransportLongPolling:      openLongPolling(client),
		},
		handshakeTimeout: opts.HandshakeTimeout,
		log:              log.With().Str("component", "transport-probe").Logger(),
	}
	p.dial = p.dialTier
	return p
}

// Open tries every candidate within a tier before moving on to the next tier.
// The token provider is asked again for every attempt so a refreshed token is
// picked up.
func (p *Probe) Open(ctx context.Context, candidates []string, tiers []Tier, tokens TokenProvider) (*Channel, error) {
	var errs []error
	for _, tier := range tiers {
		for _, address := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			token, err := tokens(ctx)
			if err != nil {
				return nil, fmt.Errorf("access token: %w", err)
			}

			ch, err := p.dial(ctx, address, tier, token)
			if err == nil {
				p.log.Info().
					Str("tier", tier.Name).
					Str("address", address).
					Str("transport", string(ch.Kind())).
					Msg("hub channel established")
				return ch, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Debug().Err(err).Str("tier", tier.Name).Str("address", address).Msg("transport attempt failed")
			errs = append(errs, fmt.Errorf("%s %s: %w", tier.Name, address, err))
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllTransportsFailed, errors.Join(errs...))
}

func (p *Probe) dialTier(ctx context.Context, address string, tier Tier, token string) (*Channel, error) {
	header := authHeader(token)

	if tier.SkipNegotiation {
		endpoint := withQuery(address, map[string]string{"access_token": token})
		return p.open(ctx, TransportWebSockets, address, endpoint, header)
	}

	neg, err := negotiate(ctx, p.client, address, token)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, kind := range tier.Transports {
		if !neg.supports(kind) {
			continue
		}
		endpoint := withQuery(address, map[string]string{
			"id":           neg.token(),
			"access_token": token,
		})
		ch, err := p.open(ctx, kind, address, endpoint, header)
		if err == nil {
			return ch, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", kind, err))
	}
	if len(errs) == 0 {
		return nil, ErrNoCommonTransport
	}
	return nil, errors.Join(errs...)
}

func (p *Probe) open(ctx context.Context, kind TransportKind, address, endpoint string, header http.Header) (*Channel, error) {
	opener, ok := p.openers[kind]
	if !ok {
		return nil, fmt.Errorf("no opener for transport %s", kind)
	}
	t, err := opener(ctx, endpoint, header)
	if err != nil {
		return nil, err
	}

	hsCtx := ctx
	if p.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, p.handshakeTimeout)
		defer cancel()
	}

	ch := &Channel{transport: t, address: address}
	if err := ch.handshake(hsCtx); err != nil {
		t.Close()
		return nil, err
	}
	return ch, nil
}

// handshake sends the protocol request and waits for the response frame.
// Frames that arrive in the same read are kept for the message loop.
func (c *Channel) handshake(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.transport.Close() })
	defer stop()

	if err := c.transport.Send(ctx, handshakeFrame()); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	for {
		data, err := c.transport.Read()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("handshake: %w", ctx.Err())
			}
			return fmt.Errorf("handshake: %w", err)
		}
		frames := c.frames.Write(data)
		if len(frames) == 0 {
			continue
		}

		var resp handshakeResponse
		if err := json.Unmarshal(frames[0], &resp); err != nil {
			return fmt.Errorf("handshake: decode response: %w", err)
		}
		if resp.Error != "" {
			return fmt.Errorf("%w: %s", ErrHandshakeRejected, resp.Error)
		}
		c.pending = frames[1:]
		return nil
	}
}
