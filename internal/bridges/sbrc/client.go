package sbrc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for charger communication.
const (
	// DefaultPort is the charger's control port.
	DefaultPort = 2202

	defaultConnectTimeout    = 10 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute

	readBufferSize = 4096

	// changeQueueSize bounds notifications waiting for the change worker.
	changeQueueSize = 512
)

// ClientConfig holds charger connection configuration.
type ClientConfig struct {
	// Address is the charger address. Accepted forms: "host",
	// "host:port" and "tcp://host:port". The port defaults to 2202.
	Address string

	// ConnectTimeout is the maximum time to wait for a connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout bounds each read. A timeout is not an error: the charger
	// is silent when nothing changes.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

// ClientStats holds operational statistics.
type ClientStats struct {
	CommandsTx      uint64    `json:"commands_tx"`
	MessagesRx      uint64    `json:"messages_rx"`
	UpdatesApplied  uint64    `json:"updates_applied"`
	FieldErrors     uint64    `json:"field_errors"`
	ChangesDropped  uint64    `json:"changes_dropped"`
	ErrorsTotal     uint64    `json:"errors_total"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	LastActivity    time.Time `json:"last_activity"`
	Connected       bool      `json:"connected"`
	Reconnecting    bool      `json:"reconnecting"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the charger connection as seen by the bridge.
// This allows mocking the charger in tests.
type Connector interface {
	Send(ctx context.Context, cmd string) error
	Store() *Store
	SetOnChange(callback func(Change))
	IsConnected() bool
	Stats() ClientStats
	Close() error
}

// Ensure Client implements Connector.
var _ Connector = (*Client)(nil)

// Client maintains the TCP connection to a charger.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Received data is framed, decoded and applied on the receive goroutine,
//     so the store sees updates in arrival order.
//   - Change callbacks run on a single worker goroutine, in mutation order.
//
// Auto-Reconnection:
//   - When the connection is lost, the client reconnects with exponential
//     backoff from ReconnectInterval up to 2 minutes.
//   - Every successful connect sends GET 0 ALL so the store is refreshed.
//   - Reconnection stops only when Close() is called.
type Client struct {
	cfg     ClientConfig
	address string
	conn    net.Conn

	connMu    sync.RWMutex
	connected bool
	writeMu   sync.Mutex

	reconnecting   atomic.Bool
	reconnectCount atomic.Int32

	store    *Store
	pipeline *Pipeline

	onChange    func(Change)
	callbackMu  sync.RWMutex
	changeQueue chan Change

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	commandsTx      atomic.Uint64
	messagesRx      atomic.Uint64
	updatesApplied  atomic.Uint64
	fieldErrors     atomic.Uint64
	changesDropped  atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// Connect dials the charger, sends the GET 0 ALL handshake and starts
// receiving.
//
// Parameters:
//   - ctx: Context for cancellation (used for the initial connection)
//   - cfg: Connection configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If the dial or handshake fails
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, c.address, err)
	}

	if err := c.establishConnection(conn); err != nil {
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.start()
	return c, nil
}

func newClient(cfg ClientConfig) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	address, err := ParseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		cfg:         cfg,
		address:     address,
		done:        newCloseOnce(),
		changeQueue: make(chan Change, changeQueueSize),
	}
	c.store = NewStore(NotifierFunc(c.enqueueChange))
	c.pipeline = NewPipeline(c.store)
	c.lastActivity.Store(time.Now().Unix())
	return c, nil
}

func (c *Client) start() {
	c.wg.Add(2)
	go c.changeWorker()
	go c.receiveLoop()
}

// ParseAddress normalises a charger address to host:port.
func ParseAddress(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("address is empty")
	}

	if u, err := url.Parse(addr); err == nil && u.Scheme != "" && u.Host != "" {
		if u.Scheme != "tcp" {
			return "", fmt.Errorf("unsupported scheme %q (use tcp)", u.Scheme)
		}
		addr = u.Host
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		return net.JoinHostPort(addr, strconv.Itoa(DefaultPort)), nil
	}
	if host == "" {
		return "", fmt.Errorf("address %q has no host", addr)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("invalid port %q", port)
	}
	return net.JoinHostPort(host, port), nil
}

// receiveLoop reads from the charger and feeds the pipeline. On connection
// loss it reconnects with backoff.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		n, err := c.read(buf)
		if n > 0 {
			c.handleData(buf[:n])
		}
		if err != nil {
			if c.handleReadError(err) {
				if c.isClosed() {
					return
				}
				if !c.reconnect() {
					return
				}
			}
		}
	}
}

func (c *Client) read(buf []byte) (int, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return 0, ErrNotConnected
	}
	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return 0, fmt.Errorf("set deadline: %w", err)
	}
	n, err := conn.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read: %w", err)
	}
	return n, nil
}

// handleData runs one received chunk through the pipeline.
func (c *Client) handleData(data []byte) {
	c.lastActivity.Store(time.Now().Unix())

	beforeMsgs, beforeApplied := c.pipeline.Messages, c.pipeline.Applied
	err := c.pipeline.Feed(string(data))
	c.messagesRx.Add(c.pipeline.Messages - beforeMsgs)
	c.updatesApplied.Add(c.pipeline.Applied - beforeApplied)

	if err != nil {
		for _, e := range unwrapJoined(err) {
			c.fieldErrors.Add(1)
			c.logWarn("update rejected", "error", e)
		}
	}
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// handleReadError processes a read error and returns true if the
// connection must be re-established.
func (c *Client) handleReadError(err error) bool {
	if c.isClosed() {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	if errors.Is(err, io.EOF) {
		c.logInfo("charger closed the connection")
	} else {
		c.logError("read failed", err)
		c.errorsTotal.Add(1)
	}
	c.handleDisconnect()
	return true
}

// enqueueChange is the store's notifier. It never blocks the receive loop.
func (c *Client) enqueueChange(ch Change) {
	c.callbackMu.RLock()
	hasCallback := c.onChange != nil
	c.callbackMu.RUnlock()

	if !hasCallback {
		return
	}

	select {
	case c.changeQueue <- ch:
	default:
		c.logError("change queue full, dropping change", fmt.Errorf("variable %s", ch.Variable))
		c.changesDropped.Add(1)
		c.errorsTotal.Add(1)
	}
}

// changeWorker delivers changes to the callback. One worker keeps them in
// mutation order.
func (c *Client) changeWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainChangeQueue()
			return
		case ch := <-c.changeQueue:
			c.callbackMu.RLock()
			callback := c.onChange
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("change callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(ch)
				}()
			}
		}
	}
}

func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// reconnect re-establishes the connection with exponential backoff.
// Returns true if reconnection succeeded, false if shutdown was signalled.
func (c *Client) reconnect() bool {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	backoff := c.cfg.ReconnectInterval

	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeOldConnection()

		conn, err := c.dialWithTimeout()
		if err != nil {
			backoff = c.handleReconnectFailure("dial failed", err, backoff)
			if backoff == 0 {
				return false
			}
			continue
		}

		if err := c.establishConnection(conn); err != nil {
			backoff = c.handleReconnectFailure("handshake failed", err, backoff)
			if backoff == 0 {
				return false
			}
			continue
		}

		c.finalizeReconnection()
		return true
	}
}

func (c *Client) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

func (c *Client) closeOldConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

func (c *Client) dialWithTimeout() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.address, err)
	}
	return conn, nil
}

// establishConnection installs conn, drops any half-received message from
// the previous connection and requests a full report.
func (c *Client) establishConnection(conn net.Conn) error {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.pipeline.Reset()

	if err := c.write(context.Background(), GetAllCommand()); err != nil {
		conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		return err
	}
	return nil
}

// handleReconnectFailure returns the next backoff, or 0 if shutdown was signalled.
func (c *Client) handleReconnectFailure(reason string, err error, backoff time.Duration) time.Duration {
	c.logError("reconnect: "+reason, err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0
	case <-time.After(backoff):
	}

	next := time.Duration(float64(backoff) * 1.5)
	if next > maxReconnectInterval {
		next = maxReconnectInterval
	}
	return next
}

func (c *Client) finalizeReconnection() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.reconnectCount.Store(0)
	c.reconnectsTotal.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
}

func (c *Client) drainChangeQueue() {
	for {
		select {
		case <-c.changeQueue:
		default:
			return
		}
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close stops the receive loop and closes the connection. Safe to call
// multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.logInfo("connection closed")
	return nil
}

// Send writes an encoded command to the charger.
//
// Parameters:
//   - ctx: Context for cancellation and write deadline
//   - cmd: Command produced by Encode or one of the *Command helpers
//
// Returns:
//   - error: ErrNotConnected while disconnected, ErrSendFailed on write errors
func (c *Client) Send(ctx context.Context, cmd string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.write(ctx, cmd)
}

func (c *Client) write(ctx context.Context, cmd string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}
	if _, err := io.WriteString(conn, cmd); err != nil {
		c.errorsTotal.Add(1)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %w: %w", ErrSendFailed, ErrTimeout, err)
		}
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.commandsTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	c.logDebug("command sent", "command", cmd)
	return nil
}

// Store returns the device state fed by this connection.
func (c *Client) Store() *Store {
	return c.store
}

// SetOnChange sets the callback for state changes.
//
// The callback runs on a single worker goroutine. Panics in the callback
// are recovered and logged.
func (c *Client) SetOnChange(callback func(Change)) {
	c.callbackMu.Lock()
	c.onChange = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true if connected to the charger.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		CommandsTx:      c.commandsTx.Load(),
		MessagesRx:      c.messagesRx.Load(),
		UpdatesApplied:  c.updatesApplied.Load(),
		FieldErrors:     c.fieldErrors.Load(),
		ChangesDropped:  c.changesDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

// HealthCheck verifies the connection is up.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
