package wsbridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/torosent/spamfire/internal/directory"
)

// RemoteDirectory is a directory.Directory served by a hub's Server.
type RemoteDirectory struct {
	client *resty.Client
}

var _ directory.Directory = (*RemoteDirectory)(nil)

// NewRemoteDirectory talks to the hub at baseURL (http or ws scheme; the
// path is ignored).
func NewRemoteDirectory(baseURL string, timeout time.Duration) (*RemoteDirectory, error) {
	base, err := HTTPBase(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &RemoteDirectory{client: client}, nil
}

func (d *RemoteDirectory) Register(ctx context.Context, id, capability string) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(registration{ID: id, Capability: capability}).
		SetError(&errorResponse{}).
		Post(DirectoryPath + "/register")
	if err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	switch resp.StatusCode() {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", directory.ErrAlreadyRegistered, id)
	default:
		return fmt.Errorf("register %s: %w", id, remoteError(resp))
	}
}

func (d *RemoteDirectory) Deregister(ctx context.Context, id string) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(registration{ID: id}).
		SetError(&errorResponse{}).
		Post(DirectoryPath + "/deregister")
	if err != nil {
		return fmt.Errorf("deregister %s: %w", id, err)
	}
	switch resp.StatusCode() {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", directory.ErrNotRegistered, id)
	default:
		return fmt.Errorf("deregister %s: %w", id, remoteError(resp))
	}
}

func (d *RemoteDirectory) Find(ctx context.Context, capability string) ([]string, error) {
	var out findResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParam("capability", capability).
		SetResult(&out).
		SetError(&errorResponse{}).
		Get(DirectoryPath)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", capability, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("find %s: %w", capability, remoteError(resp))
	}
	if out.IDs == nil {
		out.IDs = []string{}
	}
	return out.IDs, nil
}

func remoteError(resp *resty.Response) error {
	if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
		return fmt.Errorf("%w: %s (status %d)", ErrRemote, e.Error, resp.StatusCode())
	}
	return fmt.Errorf("%w: status %d", ErrRemote, resp.StatusCode())
}

// HTTPBase maps a hub URL to the scheme and host of its HTTP endpoints.
func HTTPBase(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse hub url %q: %w", raw, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("hub url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("hub url %q: missing host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// BusURL maps a hub URL to its websocket endpoint.
func BusURL(raw string) (string, error) {
	base, err := HTTPBase(raw)
	if err != nil {
		return "", err
	}
	return "ws" + strings.TrimPrefix(base, "http") + BusPath, nil
}
