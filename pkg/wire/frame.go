package wire

import (
	"bytes"
	"errors"
	"fmt"
)

// Frame markers and framing constants.
const (
	// StartByte marks the beginning of every request and response frame ('!').
	StartByte = 0x21

	// EndByte terminates every request and response frame ('\r').
	EndByte = 0x0D

	// StatusRequest is the data byte that asks the receiver to report the
	// current value of a command code instead of changing it.
	StatusRequest = 0xF0

	// MaxDataLength is the largest data payload a single frame can carry.
	MaxDataLength = 255

	// responseHeaderSize is start + zone + command + answer + length.
	responseHeaderSize = 5

	// requestHeaderSize is start + zone + command + length.
	requestHeaderSize = 4
)

// amxPrefix starts every AMX Duet beacon reply.
var amxPrefix = []byte("AMXB")

// Framing errors.
var (
	// ErrDataTooLong indicates a payload exceeding MaxDataLength.
	ErrDataTooLong = errors.New("data too long")

	// ErrInvalidZone indicates a zone outside 1..2.
	ErrInvalidZone = errors.New("invalid zone")
)

// ProtocolError indicates a malformed inbound frame. The decoder has already
// discarded bytes up to the next plausible start marker; the connection
// should not be closed.
type ProtocolError struct {
	Reason    string
	Discarded int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (%d bytes discarded)", e.Reason, e.Discarded)
}

// ZoneID identifies a receiver output zone.
type ZoneID byte

// Valid zones.
const (
	Zone1 ZoneID = 1
	Zone2 ZoneID = 2
)

// Valid reports whether the zone is one the protocol defines.
func (z ZoneID) Valid() bool {
	return z == Zone1 || z == Zone2
}

// Request is an outbound command frame.
type Request struct {
	Zone ZoneID
	Code CommandCode
	Data []byte
}

// Encode serializes the request to wire bytes:
// 0x21, Zn, Cc, Dl, Data..., 0x0D.
func (r *Request) Encode() ([]byte, error) {
	if !r.Zone.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZone, r.Zone)
	}
	if len(r.Data) > MaxDataLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrDataTooLong, len(r.Data), MaxDataLength)
	}

	buf := make([]byte, 0, requestHeaderSize+len(r.Data)+1)
	buf = append(buf, StartByte, byte(r.Zone), byte(r.Code), byte(len(r.Data)))
	buf = append(buf, r.Data...)
	buf = append(buf, EndByte)
	return buf, nil
}

// NewStatusRequest builds a request asking for the current value of code.
func NewStatusRequest(zone ZoneID, code CommandCode) *Request {
	return &Request{Zone: zone, Code: code, Data: []byte{StatusRequest}}
}

// Packet is a single decoded inbound protocol element:
// either an *Answer or an *AMXResponse.
type Packet interface {
	packet()
}

// Answer is a decoded response frame. Answers are immutable once produced.
type Answer struct {
	Zone   ZoneID
	Code   CommandCode
	Status AnswerCode
	Data   []byte
}

func (*Answer) packet() {}

// Key returns the (zone, command) identity used to match an answer to the
// in-flight command that solicited it.
func (a *Answer) Key() CommandKey {
	return CommandKey{Zone: a.Zone, Code: a.Code}
}

// OK reports whether the receiver accepted the command.
func (a *Answer) OK() bool {
	return a.Status == AnswerStatusUpdate
}

// Encode serializes the answer to wire bytes:
// 0x21, Zn, Cc, Ac, Dl, Data..., 0x0D. Used by the test emulator.
func (a *Answer) Encode() ([]byte, error) {
	if !a.Zone.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZone, a.Zone)
	}
	if len(a.Data) > MaxDataLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrDataTooLong, len(a.Data), MaxDataLength)
	}

	buf := make([]byte, 0, responseHeaderSize+len(a.Data)+1)
	buf = append(buf, StartByte, byte(a.Zone), byte(a.Code), byte(a.Status), byte(len(a.Data)))
	buf = append(buf, a.Data...)
	buf = append(buf, EndByte)
	return buf, nil
}

// CommandKey identifies a command class within a zone. It is the dedup and
// answer-matching identity: at most one command per key is on the wire.
type CommandKey struct {
	Zone ZoneID
	Code CommandCode
}

func (k CommandKey) String() string {
	return fmt.Sprintf("zone%d/%s", k.Zone, k.Code)
}

// Decoder incrementally decodes inbound bytes into packets. Feed raw bytes
// with Feed and drain complete packets with Next. A malformed frame yields a
// *ProtocolError and resynchronizes to the next plausible start marker; the
// decoder never gets stuck on bad input.
type Decoder struct {
	buf []byte
}

// Feed appends raw bytes received from the connection.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of undecoded bytes held.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards all buffered bytes. Called on reconnect so a new session
// never starts mid-frame.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Next returns the next complete packet, or (nil, nil) when more bytes are
// needed. On malformed input it discards up to the next plausible frame
// start and returns a *ProtocolError.
func (d *Decoder) Next() (Packet, error) {
	if len(d.buf) == 0 {
		return nil, nil
	}

	switch d.buf[0] {
	case StartByte:
		return d.nextAnswer()
	case amxPrefix[0]:
		return d.nextAMX()
	default:
		stray := d.buf[0]
		n := d.resync(1)
		return nil, &ProtocolError{
			Reason:    fmt.Sprintf("unexpected byte 0x%02X", stray),
			Discarded: n,
		}
	}
}

func (d *Decoder) nextAnswer() (Packet, error) {
	if len(d.buf) < responseHeaderSize {
		return nil, nil
	}

	zone := ZoneID(d.buf[1])
	code := CommandCode(d.buf[2])
	status := AnswerCode(d.buf[3])
	dataLen := int(d.buf[4])

	total := responseHeaderSize + dataLen + 1
	if len(d.buf) < total {
		return nil, nil
	}

	if d.buf[total-1] != EndByte {
		n := d.resync(1)
		return nil, &ProtocolError{Reason: "missing end marker", Discarded: n}
	}
	if !zone.Valid() {
		n := d.resync(total)
		return nil, &ProtocolError{
			Reason:    fmt.Sprintf("invalid zone %d", zone),
			Discarded: n,
		}
	}

	data := make([]byte, dataLen)
	copy(data, d.buf[responseHeaderSize:responseHeaderSize+dataLen])
	d.consume(total)

	return &Answer{Zone: zone, Code: code, Status: status, Data: data}, nil
}

func (d *Decoder) nextAMX() (Packet, error) {
	// Match as much of the AMXB prefix as we have bytes for.
	n := len(d.buf)
	if n > len(amxPrefix) {
		n = len(amxPrefix)
	}
	if !bytes.Equal(d.buf[:n], amxPrefix[:n]) {
		discarded := d.resync(1)
		return nil, &ProtocolError{Reason: "stray data", Discarded: discarded}
	}
	if len(d.buf) < len(amxPrefix) {
		return nil, nil
	}

	end := bytes.IndexByte(d.buf, EndByte)
	if end < 0 {
		if len(d.buf) > MaxDataLength {
			discarded := d.resync(len(d.buf))
			return nil, &ProtocolError{Reason: "unterminated AMX reply", Discarded: discarded}
		}
		return nil, nil
	}

	line := string(d.buf[:end])
	d.consume(end + 1)

	resp, err := ParseAMXResponse(line)
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error(), Discarded: end + 1}
	}
	return resp, nil
}

// resync discards at least skip bytes and then everything up to the next
// plausible frame start (0x21 or an AMX reply). Returns the number of bytes
// dropped.
func (d *Decoder) resync(skip int) int {
	if skip > len(d.buf) {
		skip = len(d.buf)
	}
	rest := d.buf[skip:]

	next := len(rest)
	if i := bytes.IndexByte(rest, StartByte); i >= 0 && i < next {
		next = i
	}
	if i := bytes.IndexByte(rest, amxPrefix[0]); i >= 0 && i < next {
		next = i
	}

	dropped := skip + next
	d.consume(dropped)
	return dropped
}

func (d *Decoder) consume(n int) {
	d.buf = d.buf[:copy(d.buf, d.buf[n:])]
}

// RequestDecoder incrementally decodes request frames. Only the test
// emulator needs this; real receivers are the ones parsing requests.
type RequestDecoder struct {
	buf []byte
}

// Feed appends raw bytes received from a client.
func (d *RequestDecoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete request, an AMX query marker, or (nil, nil)
// when more bytes are needed. AMX queries decode to a *Request with the
// pseudo-code CmdAMXDuet and no data.
func (d *RequestDecoder) Next() (*Request, error) {
	if len(d.buf) == 0 {
		return nil, nil
	}

	// AMX Duet query is the bare ASCII line "AMX\r".
	if d.buf[0] == 'A' {
		if len(d.buf) < 4 {
			return nil, nil
		}
		if bytes.Equal(d.buf[:4], []byte("AMX\r")) {
			d.buf = d.buf[:copy(d.buf, d.buf[4:])]
			return &Request{Zone: Zone1, Code: CmdAMXDuet}, nil
		}
		d.buf = d.buf[:copy(d.buf, d.buf[1:])]
		return nil, &ProtocolError{Reason: "stray data", Discarded: 1}
	}

	if d.buf[0] != StartByte {
		d.buf = d.buf[:copy(d.buf, d.buf[1:])]
		return nil, &ProtocolError{Reason: "missing start marker", Discarded: 1}
	}
	if len(d.buf) < requestHeaderSize {
		return nil, nil
	}

	zone := ZoneID(d.buf[1])
	code := CommandCode(d.buf[2])
	dataLen := int(d.buf[3])

	total := requestHeaderSize + dataLen + 1
	if len(d.buf) < total {
		return nil, nil
	}
	if d.buf[total-1] != EndByte {
		d.buf = d.buf[:copy(d.buf, d.buf[1:])]
		return nil, &ProtocolError{Reason: "missing end marker", Discarded: 1}
	}

	data := make([]byte, dataLen)
	copy(data, d.buf[requestHeaderSize:requestHeaderSize+dataLen])
	d.buf = d.buf[:copy(d.buf, d.buf[total:])]

	return &Request{Zone: zone, Code: code, Data: data}, nil
}
