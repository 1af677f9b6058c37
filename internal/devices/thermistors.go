package devices

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/sidereal-labs/opskit/internal/metrics"
	"github.com/sidereal-labs/opskit/internal/retry"
)

// Exchange sends a request datagram and returns the device reply.
type Exchange interface {
	Exchange(ctx context.Context, req []byte) ([]byte, error)
}

// thermistorRequest asks the board for the state of all channels.
var thermistorRequest = []byte("$016\r\n")

// Reply format: "!01" followed by a hex bitmask of the channels.
var thermistorReply = regexp.MustCompile(`!01([0-9A-F]+)\r`)

// Thermistors reads the valve thermistor board. Each board channel
// maps to a named cryostat valve.
type Thermistors struct {
	conn     Exchange
	channels map[int]string
	retrier  retry.Retrier
}

// NewThermistors creates a thermistor client.
func NewThermistors(cfg ThermistorsConfig, conn Exchange) *Thermistors {
	return &Thermistors{
		conn:     conn,
		channels: cfg.Channels,
		retrier: retry.Retrier{
			MaxAttempts:        3,
			Delay:              time.Second,
			RaiseOnMaxAttempts: true,
		},
	}
}

// parseThermistorReply extracts the channel bitmask from a reply.
func parseThermistorReply(data []byte) (uint16, error) {
	m := thermistorReply.FindSubmatch(data)
	if m == nil {
		return 0, fmt.Errorf("malformed thermistor reply %q", data)
	}
	mask, err := strconv.ParseUint(string(m[1]), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("malformed thermistor bitmask %q", m[1])
	}
	return uint16(mask), nil
}

// Read returns the state of every mapped valve. True means the valve
// thermistor senses liquid.
func (t *Thermistors) Read(ctx context.Context) (map[string]bool, error) {
	started := time.Now()
	defer func() {
		metrics.DeviceReadLatency.WithLabelValues("thermistors").
			Observe(time.Since(started).Seconds())
	}()

	exchange := retry.WrapContext(t.retrier, func(ctx context.Context) ([]byte, error) {
		return t.conn.Exchange(ctx, thermistorRequest)
	})

	reply, err := exchange(ctx)
	if err != nil {
		return nil, fmt.Errorf("thermistor read failed: %w", err)
	}

	mask, err := parseThermistorReply(reply)
	if err != nil {
		return nil, err
	}

	states := make(map[string]bool, len(t.channels))
	for channel, valve := range t.channels {
		states[valve] = mask&(1<<channel) != 0
	}
	return states, nil
}

// Channel returns the state of a single valve.
func (t *Thermistors) Channel(ctx context.Context, valve string) (bool, error) {
	states, err := t.Read(ctx)
	if err != nil {
		return false, err
	}
	state, ok := states[valve]
	if !ok {
		return false, fmt.Errorf("unknown valve %q", valve)
	}
	return state, nil
}

// UDPExchange implements Exchange over a UDP socket, one datagram per
// request.
type UDPExchange struct {
	address string
	timeout time.Duration
}

// NewUDPExchange creates a UDP transport to the board.
func NewUDPExchange(address string) *UDPExchange {
	return &UDPExchange{address: address, timeout: 5 * time.Second}
}

func (u *UDPExchange) Exchange(ctx context.Context, req []byte) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", u.address)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", u.address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(u.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}
	return buf[:n], nil
}
