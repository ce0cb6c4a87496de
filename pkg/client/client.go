package client

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jansinger/arcamfmj/pkg/connection"
	protolog "github.com/jansinger/arcamfmj/pkg/log"
	"github.com/jansinger/arcamfmj/pkg/wire"
)

// Default timeouts.
const (
	// DefaultRequestTimeout bounds how long a sent command may wait for
	// its answer. Receivers answer within tens of milliseconds when
	// awake; a late answer usually means the frame was lost.
	DefaultRequestTimeout = 3 * time.Second

	// DefaultDetectTimeout bounds the AMX Duet model detection exchange.
	DefaultDetectTimeout = 3 * time.Second
)

// Config configures a Client. Only Address is required.
type Config struct {
	// Address is the receiver's host or host:port.
	Address string

	// Logger receives operational log records. Defaults to slog.Default.
	Logger *slog.Logger

	// Protocol receives the machine-readable event capture. Defaults to
	// the noop logger.
	Protocol protolog.Logger

	// RequestTimeout bounds each sent command.
	RequestTimeout time.Duration

	// DetectTimeout bounds model detection.
	DetectTimeout time.Duration

	// Backoff tunes reconnection.
	Backoff connection.BackoffConfig

	// Dial replaces the TCP dialer, for tests.
	Dial connection.DialFunc

	// DisableReconnect turns automatic reconnection off.
	DisableReconnect bool
}

// Client is a connection to one Arcam receiver. It serializes commands
// through a priority queue, matches answers to requests by (zone, code),
// detects the receiver model, and feeds every status update to
// registered answer handlers in arrival order.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	capture protolog.Logger
	mgr     *connection.Manager

	mu       sync.Mutex
	queue    queue
	inflight map[wire.CommandKey]*inflightCommand
	closed   bool

	model     wire.APIModel
	modelName string
	detected  bool // a beacon actually answered; fallback leaves this false

	amxWaiters []chan *wire.AMXResponse

	answerFns []func(*wire.Answer)
	stateFns  []func(oldState, newState connection.State)

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

type inflightCommand struct {
	cmd     *command
	session string
	sentAt  time.Time
	timer   *time.Timer
}

// New creates a client for the given receiver. Start must be called
// before commands are served.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capture := cfg.Protocol
	if capture == nil {
		capture = protolog.NoopLogger{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.DetectTimeout <= 0 {
		cfg.DetectTimeout = DefaultDetectTimeout
	}

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		capture:  capture,
		inflight: make(map[wire.CommandKey]*inflightCommand),
		model:    wire.API450Series,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	c.mgr = connection.NewManager(connection.Config{
		Address:          cfg.Address,
		Backoff:          cfg.Backoff,
		Dial:             cfg.Dial,
		DisableReconnect: cfg.DisableReconnect,
	})
	c.mgr.OnConnect(c.onConnect)
	c.mgr.OnDisconnect(c.onDisconnect)
	c.mgr.OnStateChange(func(oldState, newState connection.State) {
		c.logger.Info("connection state",
			slog.String("address", c.mgr.Address()),
			slog.String("old", oldState.String()),
			slog.String("new", newState.String()))
		c.captureStateChange(protolog.StateEntityConnection, oldState.String(), newState.String(), "")

		c.mu.Lock()
		fns := c.stateFns
		c.mu.Unlock()
		for _, fn := range fns {
			fn(oldState, newState)
		}
	})
	c.mgr.OnReconnecting(func(attempt int, delay time.Duration) {
		c.logger.Debug("reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))
	})

	return c
}

// Start connects to the receiver and begins serving commands. The
// initial dial failure is returned; with reconnection enabled the
// client keeps retrying in the background afterwards regardless.
func (c *Client) Start(ctx context.Context) error {
	c.wg.Add(1)
	go c.writerLoop()
	c.mgr.StartReconnectLoop()
	return c.mgr.Connect(ctx)
}

// Close shuts the client down. Outstanding commands fail with ErrClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancelAll(ErrClosed)
	close(c.done)
	c.mgr.Close()
	c.wg.Wait()
}

// Connected reports whether the control connection is up.
func (c *Client) Connected() bool {
	return c.mgr.IsConnected()
}

// ConnectionState returns the current connection state.
func (c *Client) ConnectionState() connection.State {
	return c.mgr.State()
}

// Model returns the API family and the raw detected model name. The
// name is empty when detection fell back to the generic family.
func (c *Client) Model() (wire.APIModel, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model, c.modelName
}

// Capabilities returns the capability table for the detected family.
func (c *Client) Capabilities() *wire.CapabilitySet {
	model, _ := c.Model()
	return wire.Capabilities(model)
}

// OnAnswer registers fn to receive every status update the receiver
// sends, both answers to our requests and unsolicited pushes, in wire
// arrival order. Handlers run on the read loop, before the submitting
// caller is woken, and must not block.
func (c *Client) OnAnswer(fn func(*wire.Answer)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answerFns = append(c.answerFns, fn)
}

// OnConnectionState registers fn for connection state transitions.
func (c *Client) OnConnectionState(fn func(oldState, newState connection.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateFns = append(c.stateFns, fn)
}

// Read requests the current value of code on zone at action priority.
func (c *Client) Read(ctx context.Context, zone wire.ZoneID, code wire.CommandCode) (*wire.Answer, error) {
	return c.ReadWithPriority(ctx, zone, code, PriorityAction)
}

// ReadWithPriority requests the current value of code on zone.
func (c *Client) ReadWithPriority(ctx context.Context, zone wire.ZoneID, code wire.CommandCode, prio Priority) (*wire.Answer, error) {
	return c.do(ctx, &command{zone: zone, code: code, priority: prio})
}

// Write sends a direct value write and returns the answer, which echoes
// the resulting state on models that accept direct writes.
func (c *Client) Write(ctx context.Context, zone wire.ZoneID, code wire.CommandCode, data []byte) (*wire.Answer, error) {
	return c.do(ctx, &command{zone: zone, code: code, data: data, set: true, priority: PriorityAction})
}

// SimulateRC5 sends a simulated IR code. The acknowledgement does not
// carry resulting state; callers needing the new value must read it
// back afterwards.
func (c *Client) SimulateRC5(ctx context.Context, zone wire.ZoneID, code wire.RC5Code) error {
	_, err := c.do(ctx, &command{
		zone:     zone,
		code:     wire.CmdSimulateRC5,
		data:     []byte{code[0], code[1]},
		set:      true,
		priority: PriorityAction,
	})
	return err
}

// do enqueues a command and waits for its result.
func (c *Client) do(ctx context.Context, cmd *command) (*wire.Answer, error) {
	ch := make(chan result, 1)
	cmd.waiters = []chan result{ch}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.cfg.DisableReconnect && !c.mgr.IsConnected() {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	// A status request that matches a status request already on the wire
	// shares that answer instead of producing a second transaction.
	if infl := c.inflight[cmd.key()]; infl != nil && !cmd.set && !infl.cmd.set {
		infl.cmd.waiters = append(infl.cmd.waiters, ch)
		c.mu.Unlock()
	} else {
		c.queue.push(cmd)
		c.mu.Unlock()
		c.kickWriter()
	}

	select {
	case res := <-ch:
		return res.answer, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) kickWriter() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// onConnect runs for every established connection.
func (c *Client) onConnect(sessionID string, conn net.Conn) {
	c.logger.Info("connected",
		slog.String("address", c.mgr.Address()),
		slog.String("session", sessionID))

	c.wg.Add(1)
	go c.readLoop(sessionID, conn)

	c.mu.Lock()
	needDetect := !c.detected
	c.mu.Unlock()
	if needDetect {
		c.wg.Add(1)
		go c.detect(sessionID, conn)
	}

	c.kickWriter()
}

// onDisconnect flushes all pending work; answers can no longer arrive.
func (c *Client) onDisconnect(sessionID string, err error) {
	if err != nil {
		c.logger.Warn("connection lost",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
	}
	c.cancelAll(ErrCancelled)
}

// cancelAll fails every queued and in-flight command with err.
func (c *Client) cancelAll(err error) {
	c.mu.Lock()
	inflight := c.inflight
	c.inflight = make(map[wire.CommandKey]*inflightCommand)
	var flushed queue
	flushed, c.queue = c.queue, queue{}
	waiters := c.amxWaiters
	c.amxWaiters = nil
	c.mu.Unlock()

	for _, infl := range inflight {
		infl.timer.Stop()
		infl.cmd.deliver(result{err: err})
	}
	flushed.flush(err)
	for _, w := range waiters {
		close(w)
	}
}

// writerLoop drains the queue onto the current connection.
func (c *Client) writerLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.kick:
		}

		for c.writeNext() {
		}
	}
}

// writeNext sends one eligible command. Returns false when the queue is
// empty, every key is busy, or there is no connection.
func (c *Client) writeNext() bool {
	conn, session := c.mgr.Conn()
	if conn == nil {
		return false
	}

	c.mu.Lock()
	cmd := c.queue.pop(keysOf(c.inflight))
	if cmd == nil {
		c.mu.Unlock()
		return false
	}

	req := wire.Request{Zone: cmd.zone, Code: cmd.code, Data: cmd.data}
	if !cmd.set {
		req.Data = []byte{wire.StatusRequest}
	}
	raw, err := req.Encode()
	if err != nil {
		c.mu.Unlock()
		cmd.deliver(result{err: err})
		return true
	}

	key := cmd.key()
	infl := &inflightCommand{cmd: cmd, session: session, sentAt: time.Now()}
	infl.timer = time.AfterFunc(c.cfg.RequestTimeout, func() {
		c.timeoutCommand(key, infl)
	})
	c.inflight[key] = infl
	c.mu.Unlock()

	c.captureRequest(session, &req)

	if _, err := conn.Write(raw); err != nil {
		c.mu.Lock()
		if c.inflight[key] == infl {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
		infl.timer.Stop()
		cmd.deliver(result{err: err})
		c.connectionLost(session, err)
		return false
	}
	return true
}

// timeoutCommand fails an in-flight command that never got an answer.
func (c *Client) timeoutCommand(key wire.CommandKey, infl *inflightCommand) {
	c.mu.Lock()
	if c.inflight[key] != infl {
		c.mu.Unlock()
		return
	}
	delete(c.inflight, key)
	c.mu.Unlock()

	c.logger.Warn("command timed out",
		slog.String("command", key.String()),
		slog.Duration("after", c.cfg.RequestTimeout))
	c.captureError(infl.session, protolog.LayerClient, ErrTimeout.Error(), byte(key.Code), "await answer")

	infl.cmd.deliver(result{err: ErrTimeout})
	c.kickWriter()
}

// keysOf views the in-flight map as the blocked-key set for queue.pop.
func keysOf(m map[wire.CommandKey]*inflightCommand) map[wire.CommandKey]*command {
	if len(m) == 0 {
		return nil
	}
	out := make(map[wire.CommandKey]*command, len(m))
	for k, v := range m {
		out[k] = v.cmd
	}
	return out
}

// readLoop decodes everything the receiver sends on one connection.
func (c *Client) readLoop(session string, conn net.Conn) {
	defer c.wg.Done()

	dec := &wire.Decoder{}
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			c.connectionLost(session, err)
			return
		}
		c.captureFrame(session, buf[:n])
		dec.Feed(buf[:n])

		for {
			pkt, err := dec.Next()
			if err != nil {
				c.logger.Debug("discarding malformed input",
					slog.String("error", err.Error()))
				c.captureError(session, protolog.LayerWire, err.Error(), 0, "decode")
				continue
			}
			if pkt == nil {
				break
			}
			switch p := pkt.(type) {
			case *wire.Answer:
				c.handleAnswer(session, p)
			case *wire.AMXResponse:
				c.handleAMX(session, p)
			}
		}
	}
}

// connectionLost reports a dead connection, unless a newer session has
// already replaced it.
func (c *Client) connectionLost(session string, err error) {
	if _, current := c.mgr.Conn(); current != session {
		return
	}
	c.mgr.ConnectionLost(err)
}

// handleAnswer matches an answer to its in-flight command, or treats it
// as an unsolicited push. Either way state handlers see every status
// update in arrival order.
func (c *Client) handleAnswer(session string, answer *wire.Answer) {
	key := answer.Key()

	c.mu.Lock()
	infl := c.inflight[key]
	if infl != nil && infl.session == session {
		delete(c.inflight, key)
	} else {
		infl = nil
	}
	fns := c.answerFns
	c.mu.Unlock()

	// Subscribers see the answer before the submitting caller wakes up,
	// so state read through them is current once a request returns.
	if answer.OK() {
		for _, fn := range fns {
			fn(answer)
		}
	}

	if infl != nil {
		infl.timer.Stop()
		rt := time.Since(infl.sentAt)
		c.captureAnswer(session, answer, protolog.MessageTypeAnswer, &rt)

		if answer.OK() {
			infl.cmd.deliver(result{answer: answer})
		} else {
			infl.cmd.deliver(result{err: &ResponseError{
				Zone:   answer.Zone,
				Code:   answer.Code,
				Status: answer.Status,
				Data:   answer.Data,
			}})
		}
		c.kickWriter()
	} else {
		c.captureAnswer(session, answer, protolog.MessageTypePush, nil)
	}
}

// handleAMX delivers a detection beacon to whoever is waiting for it.
func (c *Client) handleAMX(session string, resp *wire.AMXResponse) {
	c.mu.Lock()
	waiters := c.amxWaiters
	c.amxWaiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		w <- resp
	}
}

// detect runs the AMX Duet identification exchange. It shares the read
// loop's connection; the beacon arrives interleaved with regular frames
// and the decoder separates them. On timeout the generic 450-series
// capability table applies and detection is retried on the next
// connection.
func (c *Client) detect(session string, conn net.Conn) {
	defer c.wg.Done()

	ch := make(chan *wire.AMXResponse, 1)
	c.mu.Lock()
	c.amxWaiters = append(c.amxWaiters, ch)
	c.mu.Unlock()

	if _, err := conn.Write(wire.AMXQuery); err != nil {
		c.connectionLost(session, err)
		return
	}

	timer := time.NewTimer(c.cfg.DetectTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return // connection lost mid-detection
		}
		model := wire.ResolveAPIModel(resp.Model)
		c.mu.Lock()
		c.model = model
		c.modelName = resp.Model
		c.detected = true
		c.mu.Unlock()

		c.logger.Info("model detected",
			slog.String("model", resp.Model),
			slog.String("family", model.String()))
		c.captureStateChange(protolog.StateEntityDetection, "", model.String(), resp.Model)

	case <-timer.C:
		c.mu.Lock()
		if !c.detected {
			c.model = wire.API450Series
			c.modelName = ""
		}
		// Drop the stale waiter so a late beacon doesn't leak.
		for i, w := range c.amxWaiters {
			if w == ch {
				c.amxWaiters = append(c.amxWaiters[:i], c.amxWaiters[i+1:]...)
				break
			}
		}
		c.mu.Unlock()

		c.logger.Warn("model detection timed out, using generic capability table")
		c.captureStateChange(protolog.StateEntityDetection, "", wire.API450Series.String(), "timeout")

	case <-c.done:
	}
}

// Protocol capture helpers.

func (c *Client) captureFrame(session string, raw []byte) {
	const maxCapture = 64
	data := raw
	truncated := false
	if len(data) > maxCapture {
		data = data[:maxCapture]
		truncated = true
	}
	c.capture.Log(protolog.Event{
		Timestamp:    time.Now(),
		ConnectionID: session,
		Direction:    protolog.DirectionIn,
		Layer:        protolog.LayerTransport,
		Category:     protolog.CategoryMessage,
		RemoteAddr:   c.mgr.Address(),
		Frame: &protolog.FrameEvent{
			Size:      len(raw),
			Data:      append([]byte(nil), data...),
			Truncated: truncated,
		},
	})
}

func (c *Client) captureRequest(session string, req *wire.Request) {
	c.capture.Log(protolog.Event{
		Timestamp:    time.Now(),
		ConnectionID: session,
		Direction:    protolog.DirectionOut,
		Layer:        protolog.LayerWire,
		Category:     protolog.CategoryMessage,
		RemoteAddr:   c.mgr.Address(),
		Zone:         uint8(req.Zone),
		Message: &protolog.MessageEvent{
			Type:    protolog.MessageTypeRequest,
			Code:    uint8(req.Code),
			Command: req.Code.String(),
			Data:    append([]byte(nil), req.Data...),
		},
	})
}

func (c *Client) captureAnswer(session string, answer *wire.Answer, typ protolog.MessageType, rt *time.Duration) {
	status := uint8(answer.Status)
	c.capture.Log(protolog.Event{
		Timestamp:    time.Now(),
		ConnectionID: session,
		Direction:    protolog.DirectionIn,
		Layer:        protolog.LayerWire,
		Category:     protolog.CategoryMessage,
		RemoteAddr:   c.mgr.Address(),
		Zone:         uint8(answer.Zone),
		Message: &protolog.MessageEvent{
			Type:      typ,
			Code:      uint8(answer.Code),
			Command:   answer.Code.String(),
			Status:    &status,
			Data:      append([]byte(nil), answer.Data...),
			RoundTrip: rt,
		},
	})
}

func (c *Client) captureStateChange(entity protolog.StateEntity, oldState, newState, reason string) {
	_, session := c.mgr.Conn()
	c.capture.Log(protolog.Event{
		Timestamp:    time.Now(),
		ConnectionID: session,
		Direction:    protolog.DirectionIn,
		Layer:        protolog.LayerClient,
		Category:     protolog.CategoryState,
		RemoteAddr:   c.mgr.Address(),
		StateChange: &protolog.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Client) captureError(session string, layer protolog.Layer, msg string, code byte, context string) {
	event := protolog.Event{
		Timestamp:    time.Now(),
		ConnectionID: session,
		Direction:    protolog.DirectionIn,
		Layer:        layer,
		Category:     protolog.CategoryError,
		RemoteAddr:   c.mgr.Address(),
		Error: &protolog.ErrorEventData{
			Layer:   layer,
			Message: msg,
			Context: context,
		},
	}
	if code != 0 {
		c := code
		event.Error.Code = &c
	}
	c.capture.Log(event)
}
