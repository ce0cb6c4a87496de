package wire

import (
	"errors"
	"fmt"
	"strings"
)

// AMXQuery is the AMX Duet identification query. It is sent as a bare
// ASCII line outside the framed protocol; receivers reply with a beacon
// line starting "AMXB".
var AMXQuery = []byte("AMX\r")

// ErrNotAMX indicates a line that is not an AMX beacon.
var ErrNotAMX = errors.New("not an AMX beacon")

// AMXResponse is a parsed AMX Duet beacon.
type AMXResponse struct {
	// SDKClass is the AMX device class, e.g. "Receiver".
	SDKClass string

	// Make is the manufacturer, e.g. "ARCAM".
	Make string

	// Model is the device model, e.g. "AV860" or "AVR30".
	Model string

	// Revision is the firmware revision, if reported.
	Revision string

	// Raw is the beacon line as received.
	Raw string
}

func (*AMXResponse) packet() {}

// ParseAMXResponse parses a beacon line of the form
// AMXB<Device-SDKClass=Receiver><Device-Make=ARCAM><Device-Model=AV860>...
// Property names vary between firmware generations ("Device-Make" vs
// "-Make"), so matching is on the suffix after the last dash.
func ParseAMXResponse(line string) (*AMXResponse, error) {
	if !strings.HasPrefix(line, "AMXB") {
		return nil, fmt.Errorf("%w: %q", ErrNotAMX, line)
	}

	resp := &AMXResponse{Raw: line}
	rest := line[len("AMXB"):]

	for {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(rest[open:], '>')
		if closing < 0 {
			break
		}
		pair := rest[open+1 : open+closing]
		rest = rest[open+closing+1:]

		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if i := strings.LastIndexByte(key, '-'); i >= 0 {
			key = key[i+1:]
		}

		switch strings.ToLower(key) {
		case "sdkclass":
			resp.SDKClass = value
		case "make":
			resp.Make = value
		case "model":
			resp.Model = value
		case "revision":
			resp.Revision = value
		}
	}

	return resp, nil
}

// EncodeAMXBeacon builds a beacon line for the given identity. Used by the
// test emulator and the discovery responder.
func EncodeAMXBeacon(sdkClass, brand, model, revision string) []byte {
	var b strings.Builder
	b.WriteString("AMXB")
	b.WriteString("<Device-SDKClass=" + sdkClass + ">")
	b.WriteString("<Device-Make=" + brand + ">")
	b.WriteString("<Device-Model=" + model + ">")
	if revision != "" {
		b.WriteString("<Device-Revision=" + revision + ">")
	}
	b.WriteByte(EndByte)
	return []byte(b.String())
}
