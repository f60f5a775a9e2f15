// driverproxy.go: Client-side command proxy for the control protocol
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package driverproxy implements the client side of the control
// protocol: it turns API calls (add a publication, remove a
// subscription, send a keepalive) into fixed-layout command records
// published onto the to-driver ring buffer, and gives the caller back
// the correlation id needed to match a later driver response.
//
// This package only writes commands; it never reads the to-clients
// broadcast buffer. A caller that needs the driver's reply correlates it
// itself using the returned correlation id.
package driverproxy

import (
	"fmt"
	"time"

	"github.com/agilira/go-timecache"
	"go.uber.org/zap"

	"github.com/agilira/concord/atomicbuffer"
	"github.com/agilira/concord/ccerr"
	"github.com/agilira/concord/ringbuffer"
)

// scratchBufferLength is the size of the scratch region each command is
// assembled into before being copied onto the ring buffer. 512 bytes
// comfortably covers every fixed-layout command plus a generously sized
// channel URI or termination token.
const scratchBufferLength = 512

// DriverProxy issues commands to a media driver over a many-to-one ring
// buffer. A single DriverProxy is meant to be shared by every thread in
// one client process: the underlying ring buffer's claim-capacity CAS
// loop is what makes concurrent callers safe, not anything in this type.
type DriverProxy struct {
	toDriver *ringbuffer.ManyToOneRingBuffer
	clientID int64
	clock    *timecache.TimeCache
	log      *zap.Logger
}

// New constructs a DriverProxy over toDriver, claiming a client id from
// its correlation counter. A nil logger is replaced with a no-op logger.
func New(toDriver *ringbuffer.ManyToOneRingBuffer, logger *zap.Logger) *DriverProxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriverProxy{
		toDriver: toDriver,
		clientID: toDriver.NextCorrelationID(),
		clock:    timecache.NewWithResolution(time.Millisecond),
		log:      logger,
	}
}

// ClientID returns the identifier this proxy uses to tag every command
// it issues, claimed once at construction time.
func (d *DriverProxy) ClientID() int64 {
	return d.clientID
}

// TimeOfLastDriverKeepalive returns the last time the driver stamped its
// consumer heartbeat on the to-driver ring, letting a client detect a
// driver that has stopped servicing the command stream.
func (d *DriverProxy) TimeOfLastDriverKeepalive() int64 {
	return d.toDriver.ConsumerHeartbeatTime()
}

// AddPublication requests a new shared publication on channel/streamID,
// returning the correlation id the driver's eventual OnPublicationReady
// response will carry.
func (d *DriverProxy) AddPublication(channel string, streamID int32) (int64, error) {
	correlationID := d.toDriver.NextCorrelationID()
	err := d.writeCommand(CommandAddPublication, func(view *atomicbuffer.View) (int32, error) {
		return publicationMessage{view}.put(d.clientID, correlationID, streamID, channel)
	})
	return correlationID, err
}

// AddExclusivePublication requests a new exclusive publication on
// channel/streamID.
func (d *DriverProxy) AddExclusivePublication(channel string, streamID int32) (int64, error) {
	correlationID := d.toDriver.NextCorrelationID()
	err := d.writeCommand(CommandAddExclusivePublication, func(view *atomicbuffer.View) (int32, error) {
		return publicationMessage{view}.put(d.clientID, correlationID, streamID, channel)
	})
	return correlationID, err
}

// RemovePublication requests removal of a previously registered
// publication identified by registrationID.
func (d *DriverProxy) RemovePublication(registrationID int64) (int64, error) {
	correlationID := d.toDriver.NextCorrelationID()
	err := d.writeCommand(CommandRemovePublication, func(view *atomicbuffer.View) (int32, error) {
		return removeMessage{view}.put(d.clientID, correlationID, registrationID)
	})
	return correlationID, err
}

// AddSubscription requests a new subscription on channel/streamID. The
// registration correlation id field is always -1 here: it exists for
// the driver's internal bookkeeping of merged subscriptions, never set
// by a client making a fresh request.
func (d *DriverProxy) AddSubscription(channel string, streamID int32) (int64, error) {
	correlationID := d.toDriver.NextCorrelationID()
	err := d.writeCommand(CommandAddSubscription, func(view *atomicbuffer.View) (int32, error) {
		return subscriptionMessage{view}.put(d.clientID, correlationID, -1, streamID, channel)
	})
	return correlationID, err
}

// RemoveSubscription requests removal of a previously registered
// subscription identified by registrationID.
func (d *DriverProxy) RemoveSubscription(registrationID int64) (int64, error) {
	correlationID := d.toDriver.NextCorrelationID()
	err := d.writeCommand(CommandRemoveSubscription, func(view *atomicbuffer.View) (int32, error) {
		return removeMessage{view}.put(d.clientID, correlationID, registrationID)
	})
	return correlationID, err
}

// ClientKeepalive announces this client is still alive. Callers are
// expected to invoke it on a steady interval shorter than the driver's
// configured client liveness timeout. A failure is logged at debug level
// and returned to the caller.
func (d *DriverProxy) ClientKeepalive() error {
	err := d.writeCommand(CommandClientKeepalive, func(view *atomicbuffer.View) (int32, error) {
		cm := correlatedMessage{view}
		if err := cm.putClientID(d.clientID); err != nil {
			return 0, err
		}
		if err := cm.putCorrelationID(0); err != nil {
			return 0, err
		}
		return correlatedMessageLength, nil
	})
	if err != nil {
		d.log.Debug("client keepalive failed", zap.Error(err))
		return err
	}
	d.log.Debug("client keepalive sent", zap.Time("at", d.clock.CachedTime()))
	return nil
}

// TerminateDriver requests the driver shut down, optionally presenting
// an authentication token it can validate before honoring the request.
func (d *DriverProxy) TerminateDriver(tokenBuffer []byte) error {
	return d.writeCommand(CommandTerminateDriver, func(view *atomicbuffer.View) (int32, error) {
		return terminateDriverMessage{view}.put(d.clientID, tokenBuffer)
	})
}

// writeCommand assembles a command of the given type into a scratch
// buffer via fill, then publishes it on the to-driver ring. A publish
// rejected for lack of ring capacity is reported as ccerr.IllegalState:
// to this proxy's caller, "the driver isn't draining its command queue"
// and "the command was malformed" are both just "the command didn't go
// through".
func (d *DriverProxy) writeCommand(commandType CommandType, fill func(view *atomicbuffer.View) (int32, error)) error {
	scratch := make([]byte, scratchBufferLength)
	view := atomicbuffer.Wrap(scratch)

	length, err := fill(view)
	if err != nil {
		return err
	}

	ok, err := d.toDriver.Write(int32(commandType), scratch, 0, length)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("driverproxy: command %s rejected by to-driver ring: %w", commandType, ccerr.IllegalState)
	}
	return nil
}
