package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"omemo/internal/domain"
)

// ErrNotFound is returned when the relay has no such device list or bundle.
var ErrNotFound = errors.New("relay: not found")

// StatusError is a non-2xx relay response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay %s %s: %s", e.Method, e.URL, e.Status)
}

// Is lets errors.Is match 404 responses against ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// HTTP is a JSON client for the relay API.
type HTTP struct {
	Base string
	HTTP *http.Client
}

// NewHTTP returns a client for the relay at base. A nil client falls back
// to http.DefaultClient.
func NewHTTP(base string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: base, HTTP: client}
}

// PutDevices publishes the device list of user.
func (c *HTTP) PutDevices(ctx context.Context, user domain.Username, ids []domain.DeviceID) error {
	return c.do(ctx, http.MethodPut, "/v1/devices/"+url.PathEscape(user.String()), deviceList{Devices: ids}, nil)
}

// GetDevices returns the device list of user.
func (c *HTTP) GetDevices(ctx context.Context, user domain.Username) ([]domain.DeviceID, error) {
	var out deviceList
	if err := c.do(ctx, http.MethodGet, "/v1/devices/"+url.PathEscape(user.String()), nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// PutBundle publishes the bundle of one device of user.
func (c *HTTP) PutBundle(ctx context.Context, user domain.Username, b domain.Bundle) error {
	return c.do(ctx, http.MethodPut, bundlePath(domain.Address{Name: user, Device: b.DeviceID}), b, nil)
}

// GetBundle fetches the bundle published by peer.
func (c *HTTP) GetBundle(ctx context.Context, peer domain.Address) (domain.Bundle, error) {
	var out domain.Bundle
	if err := c.do(ctx, http.MethodGet, bundlePath(peer), nil, &out); err != nil {
		return domain.Bundle{}, err
	}
	return out, nil
}

// PostStanza queues st for every device of to and reports how many copies
// the relay queued.
func (c *HTTP) PostStanza(ctx context.Context, to domain.Username, st domain.Stanza) (int, error) {
	var out sendResult
	if err := c.do(ctx, http.MethodPost, "/v1/stanzas/"+url.PathEscape(to.String()), st, &out); err != nil {
		return 0, err
	}
	return out.Delivered, nil
}

// FetchInbox returns up to limit queued stanzas for one device. A limit of
// zero uses the relay's default.
func (c *HTTP) FetchInbox(ctx context.Context, addr domain.Address, limit int) ([]domain.Stanza, error) {
	path := inboxPath(addr)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.Stanza
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AckInbox drops the first count stanzas of one device's inbox.
func (c *HTTP) AckInbox(ctx context.Context, addr domain.Address, count int) error {
	return c.do(ctx, http.MethodPost, inboxPath(addr)+"/ack", ackRequest{Count: count}, nil)
}

func bundlePath(a domain.Address) string {
	return "/v1/bundles/" + url.PathEscape(a.Name.String()) + "/" + a.Device.String()
}

func inboxPath(a domain.Address) string {
	return "/v1/inbox/" + url.PathEscape(a.Name.String()) + "/" + a.Device.String()
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Buffer
	if in != nil {
		body = new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return err
		}
	}
	u := c.Base + path

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &StatusError{Method: method, URL: u, Code: resp.StatusCode, Status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
