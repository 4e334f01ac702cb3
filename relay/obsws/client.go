package obsws

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	keyRequestType = "request-type"
	keyMessageID   = "message-id"
	keyUpdateType  = "update-type"

	// DefaultTimeout bounds a Call when WithTimeout is not given.
	DefaultTimeout = 30 * time.Second

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time to wait for the peer to answer a close frame.
	closeWait = 2 * time.Second
)

// State is the lifecycle state of the upstream session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Event is an unsolicited frame pushed by obs-websocket, such as SwitchScenes.
type Event struct {
	Type   string
	Fields *Payload
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets how long Call waits for a response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEventHandler installs fn to receive every event frame. fn runs on the
// receive loop and must not block.
func WithEventHandler(fn func(Event)) Option {
	return func(c *Client) {
		c.onEvent = fn
	}
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// Client owns the single session to obs-websocket.
type Client struct {
	address  string
	password string
	timeout  time.Duration
	dialer   *websocket.Dialer
	onEvent  func(Event)

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	done    chan struct{}
	pending map[string]chan *Payload

	// gorilla/websocket supports one concurrent writer.
	writeMu sync.Mutex
}

// NewClient creates a disconnected client for the given host and port. A host
// that already starts with ws:// or wss:// is used verbatim and port is ignored.
func NewClient(host string, port int, password string, opts ...Option) *Client {
	c := &Client{
		address:  buildAddress(host, port),
		password: password,
		timeout:  DefaultTimeout,
		dialer:   websocket.DefaultDialer,
		pending:  make(map[string]chan *Payload),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

func buildAddress(host string, port int) string {
	if strings.HasPrefix(host, "ws://") || strings.HasPrefix(host, "wss://") {
		return host
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// Address returns the WebSocket URL the client dials.
func (c *Client) Address() string {
	return c.address
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Connect dials obs-websocket and performs the authentication handshake.
// Calling Connect on an open session is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Connected:
		c.mu.Unlock()
		return nil
	case Connecting:
		c.mu.Unlock()
		return &ConnectionError{Address: c.address, Err: errors.New("connection attempt already in progress")}
	}
	c.state = Connecting
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.address, nil)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return &ConnectionError{Address: c.address, Err: err}
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	go c.keepalive(conn, done)

	if err := c.authenticate(ctx); err != nil {
		c.Disconnect()
		return &ConnectionError{Address: c.address, Err: err}
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return &ConnectionError{Address: c.address, Err: ErrConnectionClosed}
	}
	c.state = Connected
	c.mu.Unlock()

	log.Infof("Connected to obs-websocket at %s", c.address)
	return nil
}

// Disconnect closes the session. It is safe to call at any time and more than
// once; outstanding calls fail with ErrConnectionClosed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil {
		c.state = Disconnected
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		log.Debugf("obs-websocket close frame not sent: %v", err)
	}

	select {
	case <-done:
	case <-time.After(closeWait):
	}
	conn.Close()
	<-done
}

// Emit sends a request without waiting for, or reporting on, its outcome.
// Delivery is at most once and send errors are discarded.
func (c *Client) Emit(requestType string, data *Payload) {
	frame, err := buildRequest(requestType, uuid.NewString(), data)
	if err != nil {
		log.Debugf("emit %s dropped: %v", requestType, err)
		return
	}

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if conn == nil || state != Connected {
		log.Debugf("emit %s dropped: %v", requestType, ErrNotConnected)
		return
	}

	if err := c.write(conn, frame); err != nil {
		log.Debugf("emit %s dropped: %v", requestType, err)
	}
}

// Call sends a request and waits for the response carrying the same
// message-id. The response is returned without its message-id. Call fails with
// a *TimeoutError when no response arrives in time, and with ctx.Err() when ctx
// ends first; either way the outstanding entry is removed.
func (c *Client) Call(ctx context.Context, requestType string, data *Payload) (*Payload, error) {
	if c.State() != Connected {
		return nil, ErrNotConnected
	}
	return c.request(ctx, requestType, data)
}

func (c *Client) request(ctx context.Context, requestType string, data *Payload) (*Payload, error) {
	id := uuid.NewString()
	frame, err := buildRequest(requestType, id, data)
	if err != nil {
		return nil, err
	}

	reply := make(chan *Payload, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[id] = reply
	c.mu.Unlock()
	defer c.forget(id)

	if err := c.write(conn, frame); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-reply:
		if !ok {
			return nil, ErrConnectionClosed
		}
		return resp, nil
	case <-timer.C:
		return nil, &TimeoutError{RequestType: requestType, After: c.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop pumps frames from the connection until it fails or closes.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.teardown(conn)
		close(done)
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("obs-websocket connection lost: %v", err)
			} else {
				log.Debugf("obs-websocket read loop stopped: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	msg, err := ParsePayload(data)
	if err != nil {
		log.Debugf("Dropping malformed frame from obs-websocket: %v", err)
		return
	}

	var id string
	if Field(msg, keyMessageID, &id) {
		msg.Delete(keyMessageID)
		c.resolve(id, msg)
		return
	}

	var updateType string
	if Field(msg, keyUpdateType, &updateType) {
		if c.onEvent != nil {
			c.onEvent(Event{Type: updateType, Fields: msg})
		}
		return
	}

	log.Debug("Dropping frame without message-id or update-type")
}

func (c *Client) resolve(id string, msg *Payload) {
	c.mu.Lock()
	reply, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if !ok {
		log.Debugf("Dropping response for unknown message-id %s", id)
		return
	}
	reply <- msg
}

// teardown fails every outstanding call and marks the session closed.
func (c *Client) teardown(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.state = Disconnected
	}
	pending := c.pending
	c.pending = make(map[string]chan *Payload)
	c.mu.Unlock()

	for _, reply := range pending {
		close(reply)
	}
	conn.Close()
}

func (c *Client) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debugf("obs-websocket ping failed: %v", err)
				return
			}
		}
	}
}
