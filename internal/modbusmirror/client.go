package modbusmirror

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// RegisterWriter writes a block of holding registers.
type RegisterWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
	Close() error
}

// EndpointClient is a lazily connected Modbus TCP client. After a failed
// write the connection is dropped and re-dialled on the next write.
type EndpointClient struct {
	endpoint string
	timeout  time.Duration

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// NewEndpointClient creates a client for a host:port endpoint. It does
// not dial until the first write.
func NewEndpointClient(endpoint string, timeout time.Duration) (*EndpointClient, error) {
	if endpoint == "" {
		return nil, errors.New("modbus mirror: endpoint required")
	}
	return &EndpointClient{endpoint: endpoint, timeout: timeout}, nil
}

// WriteRegisters writes regs starting at addr on the given unit.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler == nil {
		h := modbus.NewTCPClientHandler(c.endpoint)
		h.Timeout = c.timeout
		if err := h.Connect(); err != nil {
			return fmt.Errorf("connecting to %s: %w", c.endpoint, err)
		}
		c.handler = h
		c.client = modbus.NewClient(h)
	}

	c.handler.SlaveId = unitID
	if _, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs)); err != nil { //nolint:gosec // block sizes are small
		c.handler.Close() //nolint:errcheck // Reconnect on next write
		c.handler = nil
		c.client = nil
		return fmt.Errorf("writing %d registers at %d: %w", len(regs), addr, err)
	}
	return nil
}

// Close drops the connection if one is open.
func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handler == nil {
		return nil
	}
	err := c.handler.Close()
	c.handler = nil
	c.client = nil
	return err
}

// packRegisters encodes registers big-endian.
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
