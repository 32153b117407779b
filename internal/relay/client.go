package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Client is the CLI-side connection to a running driver's control
// endpoint. It is not safe for concurrent calls; the CLI issues one
// command at a time.
type Client struct {
	conn   *websocket.Conn
	nextID uint64
}

// Dial connects, performs the hello/welcome handshake, and returns a
// ready client.
func Dial(ctx context.Context, addr, token, clientName string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial control endpoint %s: %w", addr, err)
	}

	hello := helloMessage{Type: "hello", Token: token, Client: clientName, Version: protocolVersion}
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var welcome welcomeMessage
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		_ = conn.Close()
		return nil, fmt.Errorf("expected welcome, got %q", welcome.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	return &Client{conn: conn}, nil
}

// Call sends one command and waits for its response, skipping any
// notifications that arrive in between.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: rawParams}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	deadline := time.Now().Add(30 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read response for %s: %w", method, err)
		}

		var resp struct {
			ID     string          `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *rpcError       `json:"error"`
		}
		if err := json.Unmarshal(data, &resp); err != nil || resp.ID != id {
			continue // notification or unrelated frame
		}
		if resp.Error != nil {
			return nil, errors.New(resp.Error.Message)
		}
		return resp.Result, nil
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
