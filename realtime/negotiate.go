package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type negotiateResponse struct {
	ConnectionID        string               `json:"connectionId"`
	ConnectionToken     string               `json:"connectionToken"`
	NegotiateVersion    int                  `json:"negotiateVersion"`
	AvailableTransports []availableTransport `json:"availableTransports"`
	Error               string               `json:"error,omitempty"`
}

type availableTransport struct {
	Transport       TransportKind `json:"transport"`
	TransferFormats []string      `json:"transferFormats"`
}

func (n *negotiateResponse) supports(kind TransportKind) bool {
	for _, t := range n.AvailableTransports {
		if t.Transport == kind {
			return true
		}
	}
	return false
}

// token returns the id the connect request must carry. Version 0 hubs only
// hand out a connection id.
func (n *negotiateResponse) token() string {
	if n.ConnectionToken != "" {
		return n.ConnectionToken
	}
	return n.ConnectionID
}

func negotiateURL(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/negotiate"
	q := u.Query()
	q.Set("negotiateVersion", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func negotiate(ctx context.Context, client *http.Client, address, token string) (*negotiateResponse, error) {
	endpoint, err := negotiateURL(address)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	copyHeader(req, authHeader(token))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("negotiate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("negotiate: unexpected status %s", resp.Status)
	}

	var out negotiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("negotiate: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("negotiate: %s", out.Error)
	}
	return &out, nil
}
