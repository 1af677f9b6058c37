package devices

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPRegisterClient implements RegisterClient over Modbus TCP. A
// connection is opened per request; the controllers drop idle sockets
// aggressively.
type TCPRegisterClient struct {
	address string
	unit    byte
	timeout time.Duration

	mu  sync.Mutex
	txn uint16
}

// NewTCPRegisterClient creates a register client for a controller.
func NewTCPRegisterClient(address string) *TCPRegisterClient {
	return &TCPRegisterClient{address: address, unit: 1, timeout: 5 * time.Second}
}

const (
	fnReadHolding = 0x03
	fnWriteSingle = 0x06
)

// request frames and sends a PDU and returns the response PDU.
func (c *TCPRegisterClient) request(ctx context.Context, pdu []byte) ([]byte, error) {
	c.mu.Lock()
	c.txn++
	txn := c.txn
	c.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", c.address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// MBAP header: transaction, protocol 0, length, unit.
	frame := make([]byte, 7+len(pdu))
	binary.BigEndian.PutUint16(frame[0:], txn)
	binary.BigEndian.PutUint16(frame[4:], uint16(len(pdu)+1))
	frame[6] = c.unit
	copy(frame[7:], pdu)

	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	header := make([]byte, 7)
	if _, err := readFull(conn, header); err != nil {
		return nil, fmt.Errorf("failed to read reply header: %w", err)
	}

	length := binary.BigEndian.Uint16(header[4:])
	if length < 2 || length > 256 {
		return nil, fmt.Errorf("bad reply length %d", length)
	}

	body := make([]byte, length-1)
	if _, err := readFull(conn, body); err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	if body[0]&0x80 != 0 {
		if len(body) < 2 {
			return nil, fmt.Errorf("truncated exception reply")
		}
		return nil, fmt.Errorf("device exception %#x", body[1])
	}
	return body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return read, err
		}
		read += n
	}
	return read, nil
}

// ReadRegisters reads count holding registers starting at address.
func (c *TCPRegisterClient) ReadRegisters(
	ctx context.Context,
	address, count uint16,
) ([]uint16, error) {
	pdu := make([]byte, 5)
	pdu[0] = fnReadHolding
	binary.BigEndian.PutUint16(pdu[1:], address)
	binary.BigEndian.PutUint16(pdu[3:], count)

	body, err := c.request(ctx, pdu)
	if err != nil {
		return nil, err
	}

	if len(body) < 2 || body[0] != fnReadHolding {
		return nil, fmt.Errorf("unexpected reply %#x", body[0])
	}
	n := int(body[1])
	if n != int(count)*2 || len(body) < 2+n {
		return nil, fmt.Errorf("short register reply")
	}

	regs := make([]uint16, count)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(body[2+2*i:])
	}
	return regs, nil
}

// WriteRegister writes a single holding register.
func (c *TCPRegisterClient) WriteRegister(ctx context.Context, address, value uint16) error {
	pdu := make([]byte, 5)
	pdu[0] = fnWriteSingle
	binary.BigEndian.PutUint16(pdu[1:], address)
	binary.BigEndian.PutUint16(pdu[3:], value)

	body, err := c.request(ctx, pdu)
	if err != nil {
		return err
	}
	if len(body) < 1 || body[0] != fnWriteSingle {
		return fmt.Errorf("unexpected reply %#x", body[0])
	}
	return nil
}
