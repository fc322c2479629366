// Package plc owns the connection to the field controller and exposes typed
// register reads over it. Errors are split into two families: tag errors
// (bad address, undecodable value, controller-side rejection) that yield a
// per-tag "no value", and connection faults that force the poller to tear
// the session down and reconnect.
package plc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/robinson/gos7"
	"github.com/rs/zerolog/log"

	"github.com/plantops/pumpwatch/internal/model"
)

// Reader is the typed register-read surface the poller depends on.
type Reader interface {
	Connect() error
	ReadReal(tag model.RealTag) (float64, error)
	ReadBool(tag model.BoolTag) (bool, error)
	Disconnect()
}

var (
	ErrBadAddress   = errors.New("plc: bad tag address")
	ErrBadValue     = errors.New("plc: undecodable value")
	ErrConn         = errors.New("plc: connection fault")
	ErrNotConnected = errors.New("plc: not connected")
)

// IsTagError reports whether err is confined to a single tag. Anything else
// coming out of a read is a session-level fault.
func IsTagError(err error) bool {
	return errors.Is(err, ErrBadAddress) || errors.Is(err, ErrBadValue)
}

const connectTimeout = 5 * time.Second

// Client reads register blocks from one S7 controller. The connection is
// lazy and persistent: Connect is called once and the session is reused
// until a caller decides a fault warrants Disconnect.
type Client struct {
	endpoint model.Endpoint
	handler  *gos7.TCPClientHandler
	client   gos7.Client
}

func NewClient(endpoint model.Endpoint) *Client {
	return &Client{endpoint: endpoint}
}

func (c *Client) Connect() error {
	if c.client != nil {
		return nil
	}
	handler := gos7.NewTCPClientHandler(c.endpoint.Host, c.endpoint.Rack, c.endpoint.Slot)
	handler.Timeout = connectTimeout
	if err := handler.Connect(); err != nil {
		handler.Close()
		return fmt.Errorf("plc: connect %s rack=%d slot=%d: %w",
			c.endpoint.Host, c.endpoint.Rack, c.endpoint.Slot, err)
	}
	c.handler = handler
	c.client = gos7.NewClient(handler)

	log.Info().
		Str("host", c.endpoint.Host).
		Int("rack", c.endpoint.Rack).
		Int("slot", c.endpoint.Slot).
		Msg("PLC session established")
	return nil
}

// ReadReal reads a 4-byte big-endian float from a register block.
func (c *Client) ReadReal(tag model.RealTag) (float64, error) {
	if tag.Block < 0 || tag.Offset < 0 {
		return 0, ErrBadAddress
	}
	if c.client == nil {
		return 0, ErrNotConnected
	}
	buf := make([]byte, 4)
	if err := c.client.AGReadDB(tag.Block, tag.Offset, 4, buf); err != nil {
		return 0, classify(err, fmt.Sprintf("real db%d.%d", tag.Block, tag.Offset))
	}
	v := float64(math.Float32frombits(binary.BigEndian.Uint32(buf)))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: real db%d.%d", ErrBadValue, tag.Block, tag.Offset)
	}
	return v, nil
}

// ReadBool reads one byte and extracts a single bit.
func (c *Client) ReadBool(tag model.BoolTag) (bool, error) {
	if tag.Block < 0 || tag.Offset < 0 || tag.Bit < 0 || tag.Bit > 7 {
		return false, ErrBadAddress
	}
	if c.client == nil {
		return false, ErrNotConnected
	}
	buf := make([]byte, 1)
	if err := c.client.AGReadDB(tag.Block, tag.Offset, 1, buf); err != nil {
		return false, classify(err, fmt.Sprintf("bool db%d.%d.%d", tag.Block, tag.Offset, tag.Bit))
	}
	return buf[0]&(1<<uint(tag.Bit)) != 0, nil
}

func (c *Client) Disconnect() {
	if c.handler != nil {
		c.handler.Close()
	}
	c.handler = nil
	c.client = nil
}

// classify sorts a read failure into the connection or tag family.
// Transport-level errors mean the session is gone; everything else is a
// controller-side rejection of this one address.
func classify(err error, what string) error {
	var nerr net.Error
	if errors.As(err, &nerr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: read %s: %v", ErrConn, what, err)
	}
	return fmt.Errorf("%w: read %s: %v", ErrBadValue, what, err)
}
