// Package emulator implements a fake Arcam receiver for tests. It speaks
// the framed control protocol and the AMX Duet identification exchange
// over real TCP connections so client tests exercise the full stack.
package emulator

import (
	"net"
	"sync"
	"time"

	"github.com/jansinger/arcamfmj/pkg/wire"
)

// Config configures the emulated receiver. Zero values give an AV860
// with both zones and sane defaults.
type Config struct {
	// Model reported in the AMX beacon.
	Model string

	// SDKClass reported in the AMX beacon.
	SDKClass string

	// Revision reported in the AMX beacon.
	Revision string

	// DisableAMX makes the receiver ignore AMX queries, as receivers
	// with very old firmware do. Used to test detection fallback.
	DisableAMX bool

	// AnswerDelay delays every answer, for timeout tests.
	AnswerDelay time.Duration
}

// Receiver is an in-process Arcam receiver.
type Receiver struct {
	cfg Config
	ln  net.Listener

	mu     sync.Mutex
	zones  map[wire.ZoneID]map[wire.CommandCode][]byte
	conns  map[net.Conn]struct{}
	closed bool

	wg sync.WaitGroup
}

// New starts an emulated receiver on a loopback port.
func New(cfg Config) (*Receiver, error) {
	if cfg.Model == "" {
		cfg.Model = "AV860"
	}
	if cfg.SDKClass == "" {
		cfg.SDKClass = "Receiver"
	}
	if cfg.Revision == "" {
		cfg.Revision = "1.0"
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		cfg:   cfg,
		ln:    ln,
		zones: defaultRegisters(),
		conns: make(map[net.Conn]struct{}),
	}

	r.wg.Add(1)
	go r.acceptLoop()
	return r, nil
}

func defaultRegisters() map[wire.ZoneID]map[wire.CommandCode][]byte {
	return map[wire.ZoneID]map[wire.CommandCode][]byte{
		wire.Zone1: {
			wire.CmdPower:                   {byte(wire.PowerOn)},
			wire.CmdVolume:                  {30},
			wire.CmdMute:                    {byte(wire.NotMuted)},
			wire.CmdCurrentSource:           {byte(wire.SourceBD)},
			wire.CmdDisplayBrightness:       {byte(wire.BrightnessLevel2)},
			wire.CmdBass:                    {0x00},
			wire.CmdTreble:                  {0x00},
			wire.CmdBalance:                 {0x00},
			wire.CmdSubwooferTrim:           {0x00},
			wire.CmdLipsyncDelay:            {0x00},
			wire.CmdCompression:             {byte(wire.CompressionOff)},
			wire.CmdDecodeMode2CH:           {byte(wire.Mode2CHStereo)},
			wire.CmdDecodeModeMCH:           {byte(wire.ModeMCHMultiChannel)},
			wire.CmdIncomingAudioFormat:     {byte(wire.AudioFormatPCM), byte(wire.AudioConfigStereoOnly)},
			wire.CmdIncomingAudioSampleRate: {0x02}, // 48 kHz
			wire.CmdSoftwareVersion:         []byte("1.0"),
		},
		wire.Zone2: {
			wire.CmdPower:         {byte(wire.PowerStandby)},
			wire.CmdVolume:        {20},
			wire.CmdMute:          {byte(wire.NotMuted)},
			wire.CmdCurrentSource: {byte(wire.SourceFollowZone1)},
		},
	}
}

// Addr returns the host:port the receiver listens on.
func (r *Receiver) Addr() string {
	return r.ln.Addr().String()
}

// Close shuts the receiver down and closes all connections.
func (r *Receiver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conns := make([]net.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	r.ln.Close()
	for _, c := range conns {
		c.Close()
	}
	r.wg.Wait()
}

// DropConnections closes all active connections without stopping the
// listener. Simulates the receiver rebooting.
func (r *Receiver) DropConnections() {
	r.mu.Lock()
	conns := make([]net.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// SetRegister sets a zone register directly, without notifying clients.
func (r *Receiver) SetRegister(zone wire.ZoneID, code wire.CommandCode, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if regs, ok := r.zones[zone]; ok {
		regs[code] = append([]byte(nil), data...)
	}
}

// Register returns a copy of a zone register.
func (r *Receiver) Register(zone wire.ZoneID, code wire.CommandCode) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs, ok := r.zones[zone]
	if !ok {
		return nil, false
	}
	data, ok := regs[code]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Push sets a register and broadcasts an unsolicited status update to
// every connected client, as receivers do when the front panel or IR
// remote changes something.
func (r *Receiver) Push(zone wire.ZoneID, code wire.CommandCode, data []byte) {
	r.SetRegister(zone, code, data)

	answer := &wire.Answer{Zone: zone, Code: code, Status: wire.AnswerStatusUpdate, Data: data}
	raw, err := answer.Encode()
	if err != nil {
		return
	}

	r.mu.Lock()
	conns := make([]net.Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Write(raw)
	}
}

func (r *Receiver) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			conn.Close()
			return
		}
		r.conns[conn] = struct{}{}
		r.mu.Unlock()

		r.wg.Add(1)
		go r.handleConn(conn)
	}
}

func (r *Receiver) handleConn(conn net.Conn) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.conns, conn)
		r.mu.Unlock()
		conn.Close()
	}()

	var dec wire.RequestDecoder
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		dec.Feed(buf[:n])

		for {
			req, err := dec.Next()
			if err != nil {
				// Skip garbage the same way real firmware does.
				continue
			}
			if req == nil {
				break
			}
			if r.cfg.AnswerDelay > 0 {
				time.Sleep(r.cfg.AnswerDelay)
			}
			if err := r.handleRequest(conn, req); err != nil {
				return
			}
		}
	}
}

func (r *Receiver) handleRequest(conn net.Conn, req *wire.Request) error {
	if req.Code == wire.CmdAMXDuet {
		if r.cfg.DisableAMX {
			return nil
		}
		_, err := conn.Write(wire.EncodeAMXBeacon(r.cfg.SDKClass, "ARCAM", r.cfg.Model, r.cfg.Revision))
		return err
	}

	r.mu.Lock()
	regs, zoneOK := r.zones[req.Zone]
	r.mu.Unlock()
	if !zoneOK {
		// Answer on zone 1 since the requested zone can't be encoded.
		bad := &wire.Request{Zone: wire.Zone1, Code: req.Code, Data: req.Data}
		return r.reply(conn, bad, wire.AnswerZoneInvalid, req.Data)
	}

	// Status request.
	if len(req.Data) == 1 && req.Data[0] == wire.StatusRequest {
		r.mu.Lock()
		data, ok := regs[req.Code]
		data = append([]byte(nil), data...)
		r.mu.Unlock()
		if !ok {
			return r.reply(conn, req, wire.AnswerCommandNotRecognised, req.Data)
		}
		return r.reply(conn, req, wire.AnswerStatusUpdate, data)
	}

	switch req.Code {
	case wire.CmdSimulateRC5:
		return r.handleRC5(conn, req)

	case wire.CmdVolume:
		if len(req.Data) != 1 {
			return r.reply(conn, req, wire.AnswerInvalidDataLength, req.Data)
		}
		if int(req.Data[0]) > wire.VolumeMax {
			return r.reply(conn, req, wire.AnswerParameterNotRecognised, req.Data)
		}
		return r.writeRegister(conn, req, req.Data)

	case wire.CmdMute, wire.CmdPower, wire.CmdCurrentSource,
		wire.CmdDisplayBrightness, wire.CmdCompression,
		wire.CmdDecodeMode2CH, wire.CmdDecodeModeMCH:
		if len(req.Data) != 1 {
			return r.reply(conn, req, wire.AnswerInvalidDataLength, req.Data)
		}
		return r.writeRegister(conn, req, req.Data)

	case wire.CmdBass, wire.CmdTreble, wire.CmdBalance,
		wire.CmdSubwooferTrim, wire.CmdLipsyncDelay:
		if len(req.Data) != 1 {
			return r.reply(conn, req, wire.AnswerInvalidDataLength, req.Data)
		}
		return r.writeRegister(conn, req, req.Data)

	default:
		return r.reply(conn, req, wire.AnswerCommandNotRecognised, req.Data)
	}
}

// handleRC5 applies a simulated IR code. The acknowledgement echoes the
// RC5 bytes and never carries the resulting state; clients must read it
// back, exactly like real hardware.
func (r *Receiver) handleRC5(conn net.Conn, req *wire.Request) error {
	if len(req.Data) != 2 {
		return r.reply(conn, req, wire.AnswerInvalidDataLength, req.Data)
	}
	code := wire.RC5Code{req.Data[0], req.Data[1]}
	zone := req.Zone

	r.mu.Lock()
	regs := r.zones[zone]
	applied := true
	switch code {
	case wire.RC5PowerOn(zone):
		regs[wire.CmdPower] = []byte{byte(wire.PowerOn)}
	case wire.RC5PowerOff(zone):
		regs[wire.CmdPower] = []byte{byte(wire.PowerStandby)}
	case wire.RC5MuteOn(zone):
		regs[wire.CmdMute] = []byte{byte(wire.Muted)}
	case wire.RC5MuteOff(zone):
		regs[wire.CmdMute] = []byte{byte(wire.NotMuted)}
	case wire.RC5VolumeUp(zone):
		regs[wire.CmdVolume] = []byte{stepVolume(regs[wire.CmdVolume], +1)}
	case wire.RC5VolumeDown(zone):
		regs[wire.CmdVolume] = []byte{stepVolume(regs[wire.CmdVolume], -1)}
	default:
		applied = false
		for _, src := range []wire.SourceCode{
			wire.SourceCD, wire.SourceBD, wire.SourceAV, wire.SourceSAT,
			wire.SourcePVR, wire.SourceVCR, wire.SourceAUX, wire.SourceDisplay,
			wire.SourceFM, wire.SourceDAB, wire.SourceBT, wire.SourceNet,
			wire.SourceUSB, wire.SourceSTB, wire.SourceGame, wire.SourcePhono,
		} {
			if rc5, ok := wire.RC5Source(zone, src); ok && rc5 == code {
				regs[wire.CmdCurrentSource] = []byte{byte(src)}
				applied = true
				break
			}
		}
	}
	r.mu.Unlock()

	if !applied {
		return r.reply(conn, req, wire.AnswerParameterNotRecognised, req.Data)
	}
	return r.reply(conn, req, wire.AnswerStatusUpdate, req.Data)
}

func stepVolume(cur []byte, delta int) byte {
	v := 0
	if len(cur) == 1 {
		v = int(cur[0])
	}
	v += delta
	if v < 0 {
		v = 0
	}
	if v > wire.VolumeMax {
		v = wire.VolumeMax
	}
	return byte(v)
}

func (r *Receiver) writeRegister(conn net.Conn, req *wire.Request, data []byte) error {
	r.mu.Lock()
	r.zones[req.Zone][req.Code] = append([]byte(nil), data...)
	r.mu.Unlock()
	return r.reply(conn, req, wire.AnswerStatusUpdate, data)
}

func (r *Receiver) reply(conn net.Conn, req *wire.Request, status wire.AnswerCode, data []byte) error {
	answer := &wire.Answer{Zone: req.Zone, Code: req.Code, Status: status, Data: data}
	raw, err := answer.Encode()
	if err != nil {
		return err
	}
	if _, err := conn.Write(raw); err != nil {
		return err
	}
	return nil
}
