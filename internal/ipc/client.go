package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves daemon runtime information.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Satchel.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Summary retrieves the queue snapshot.
func (c *Client) Summary() (*SummaryResponse, error) {
	var resp SummaryResponse
	if err := c.client.Call("Satchel.Summary", SummaryRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList lists queue entries, optionally filtered by status.
func (c *Client) QueueList(statuses ...string) (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.client.Call("Satchel.QueueList", QueueListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit sends a capture through the daemon.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Satchel.Submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry retries a failed queue entry.
func (c *Client) Retry(id string) (*RetryResponse, error) {
	var resp RetryResponse
	if err := c.client.Call("Satchel.Retry", RetryRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Discard removes a queue entry.
func (c *Client) Discard(id string) (*DiscardResponse, error) {
	var resp DiscardResponse
	if err := c.client.Call("Satchel.Discard", DiscardRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health retrieves queue database diagnostics.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.client.Call("Satchel.Health", HealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification asks the daemon to send a probe notification.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Satchel.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Satchel.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
