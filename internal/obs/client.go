// Package obs implements a minimal OBS WebSocket v5 client for frame capture.
package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Protocol opcodes.
const (
	opHello      = 0
	opIdentify   = 1
	opIdentified = 2
	opEvent      = 5
	opRequest    = 6
	opResponse   = 7
)

const rpcVersion = 1

// Input describes a capture input known to the backend.
type Input struct {
	Name string
	Kind string
}

// Client is a request/response OBS WebSocket client. One in-flight request
// at a time; event messages received while waiting are discarded.
type Client struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	timeout   time.Duration
}

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	RPCVersion     int `json:"rpcVersion"`
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

type requestBody struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type responseBody struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// Connect dials the backend and completes the Hello/Identify handshake.
func Connect(ctx context.Context, host string, port int, password string) (*Client, error) {
	url := fmt.Sprintf("ws://%s:%d", host, port)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(16 << 20) // screenshots arrive base64-encoded

	c := &Client{conn: conn, timeout: 10 * time.Second}

	var hello helloData
	if err := c.readOp(ctx, opHello, &hello); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "no hello")
		return nil, fmt.Errorf("hello: %w", err)
	}

	ident := identifyData{RPCVersion: rpcVersion}
	if hello.Authentication != nil {
		ident.Authentication = authToken(password, hello.Authentication.Salt, hello.Authentication.Challenge)
	}
	if err := wsjson.Write(ctx, conn, map[string]any{"op": opIdentify, "d": ident}); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "identify failed")
		return nil, fmt.Errorf("identify: %w", err)
	}
	if err := c.readOp(ctx, opIdentified, &struct{}{}); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "not identified")
		return nil, fmt.Errorf("identified: %w", err)
	}

	c.connected = true
	slog.Info("connected to capture backend", "url", url)
	return c, nil
}

// authToken derives the handshake response:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func authToken(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

// readOp reads envelopes until one with the wanted opcode arrives.
func (c *Client) readOp(ctx context.Context, op int, out any) error {
	for {
		var env envelope
		if err := wsjson.Read(ctx, c.conn, &env); err != nil {
			return err
		}
		if env.Op != op {
			continue
		}
		return json.Unmarshal(env.D, out)
	}
}

// Call sends one request and decodes its response data into out.
func (c *Client) Call(ctx context.Context, requestType string, requestData, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return fmt.Errorf("not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := uuid.NewString()
	req := requestBody{RequestType: requestType, RequestID: id, RequestData: requestData}
	if err := wsjson.Write(ctx, c.conn, map[string]any{"op": opRequest, "d": req}); err != nil {
		return fmt.Errorf("write %s: %w", requestType, err)
	}

	for {
		var env envelope
		if err := wsjson.Read(ctx, c.conn, &env); err != nil {
			return fmt.Errorf("read %s: %w", requestType, err)
		}
		if env.Op != opResponse {
			continue
		}
		var resp responseBody
		if err := json.Unmarshal(env.D, &resp); err != nil {
			return fmt.Errorf("decode %s: %w", requestType, err)
		}
		if resp.RequestID != id {
			continue
		}
		if !resp.RequestStatus.Result {
			return fmt.Errorf("%s failed: code %d %s", requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		if out != nil && len(resp.ResponseData) > 0 {
			return json.Unmarshal(resp.ResponseData, out)
		}
		return nil
	}
}

// Inputs lists capture inputs via GetInputList (backend v28+).
func (c *Client) Inputs(ctx context.Context) ([]Input, error) {
	var resp struct {
		Inputs []struct {
			InputName string `json:"inputName"`
			InputKind string `json:"inputKind"`
		} `json:"inputs"`
	}
	if err := c.Call(ctx, "GetInputList", nil, &resp); err != nil {
		return nil, err
	}
	inputs := make([]Input, 0, len(resp.Inputs))
	for _, in := range resp.Inputs {
		inputs = append(inputs, Input{Name: in.InputName, Kind: in.InputKind})
	}
	return inputs, nil
}

// SourcesLegacy lists inputs via GetSourcesList (pre-v28 backends).
func (c *Client) SourcesLegacy(ctx context.Context) ([]Input, error) {
	var resp struct {
		Sources []struct {
			Name   string `json:"name"`
			TypeID string `json:"typeId"`
		} `json:"sources"`
	}
	if err := c.Call(ctx, "GetSourcesList", nil, &resp); err != nil {
		return nil, err
	}
	inputs := make([]Input, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		inputs = append(inputs, Input{Name: s.Name, Kind: s.TypeID})
	}
	return inputs, nil
}

// Screenshot requests a still of the named source and returns decoded
// image bytes (the backend replies with a base64 data URL).
func (c *Client) Screenshot(ctx context.Context, source, format string, width, height, quality int) ([]byte, error) {
	req := map[string]any{
		"sourceName":              source,
		"imageFormat":             format,
		"imageWidth":              width,
		"imageHeight":             height,
		"imageCompressionQuality": quality,
	}
	var resp struct {
		ImageData string `json:"imageData"`
	}
	if err := c.Call(ctx, "GetSourceScreenshot", req, &resp); err != nil {
		return nil, err
	}
	return DecodeDataURL(resp.ImageData)
}

// DecodeDataURL strips an optional "data:...;base64," prefix and decodes.
func DecodeDataURL(data string) ([]byte, error) {
	if i := strings.Index(data, ";base64,"); i >= 0 {
		data = data[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	return raw, nil
}

// Connected reports whether the handshake completed and Close was not called.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
