// client.go: Top-level client wiring the cnc, ringbuffer, broadcast, and
// driverproxy packages together over a single shared region
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package concord

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/agilira/concord/broadcast"
	"github.com/agilira/concord/ccerr"
	"github.com/agilira/concord/cnc"
	"github.com/agilira/concord/driverproxy"
	"github.com/agilira/concord/ringbuffer"
)

// Client is a connected view of a command-and-control region: it owns
// the to-driver ring, the to-clients broadcast receiver, and a
// DriverProxy through which commands are sent. One Client should be
// shared by every part of a process that talks to the same driver — its
// ClientID is claimed once, at construction.
type Client struct {
	region []byte
	layout cnc.Layout

	toDriver *ringbuffer.ManyToOneRingBuffer
	receiver *broadcast.Receiver
	proxy    *driverproxy.DriverProxy

	log *zap.Logger
}

// Connect wraps region — already laid out per the cnc package's file
// format, typically by memory-mapping a cnc.dat file a media driver has
// already initialized — as a Client. It fails with ccerr.IllegalState if
// the region's metadata reports a cnc version this build doesn't
// understand.
//
// A nil logger is replaced with a no-op logger.
func Connect(region []byte, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	md, err := cnc.NewMetaData(region)
	if err != nil {
		return nil, err
	}
	version, err := md.CncVersion()
	if err != nil {
		return nil, err
	}
	if version != cnc.Version {
		return nil, fmt.Errorf("concord: region cnc version %d does not match supported version %d: %w", version, cnc.Version, ccerr.IllegalState)
	}

	layout, err := cnc.ComputeLayout(md)
	if err != nil {
		return nil, err
	}
	if int32(len(region)) < cnc.TotalLength(layout) {
		return nil, fmt.Errorf("concord: region length %d smaller than layout total %d: %w", len(region), cnc.TotalLength(layout), ccerr.IllegalArgument)
	}

	toDriver, err := ringbuffer.New(cnc.ToDriverBuffer(region, layout), logger)
	if err != nil {
		return nil, err
	}
	receiver, err := broadcast.NewReceiver(cnc.ToClientsBuffer(region, layout), logger)
	if err != nil {
		return nil, err
	}
	proxy := driverproxy.New(toDriver, logger)

	return &Client{
		region:   region,
		layout:   layout,
		toDriver: toDriver,
		receiver: receiver,
		proxy:    proxy,
		log:      logger,
	}, nil
}

// Proxy returns the DriverProxy used to issue commands to the driver.
func (c *Client) Proxy() *driverproxy.DriverProxy {
	return c.proxy
}

// Responses returns the broadcast Receiver used to observe driver
// responses. Only one goroutine should poll a given Client's receiver;
// callers that need multiple independent readers should construct their
// own broadcast.Receiver over the same region instead.
func (c *Client) Responses() *broadcast.Receiver {
	return c.receiver
}

// ClientID returns the identifier this client's commands are tagged
// with.
func (c *Client) ClientID() int64 {
	return c.proxy.ClientID()
}

// Keepalive sends a single client keepalive to the driver. Callers are
// expected to call this on a steady interval; Client does not run its
// own timer.
func (c *Client) Keepalive() error {
	return c.proxy.ClientKeepalive()
}

// DriverLive reports whether the driver has stamped its consumer
// heartbeat on the to-driver ring within the given staleness window.
func (c *Client) DriverLive(nowMillis, maxStalenessMillis int64) bool {
	last := c.proxy.TimeOfLastDriverKeepalive()
	return last != 0 && nowMillis-last <= maxStalenessMillis
}
