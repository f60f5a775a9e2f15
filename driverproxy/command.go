// command.go: Control protocol command/response identifiers and flyweights
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package driverproxy

import (
	"fmt"

	"github.com/agilira/concord/atomicbuffer"
	"github.com/agilira/concord/ccerr"
)

// CommandType identifies a command sent from a client to the driver over
// the to-driver ring buffer.
type CommandType int32

// Command type identifiers. Numbering is internal to this module; it is
// not required to match any other Aeron implementation's wire values,
// since client and driver here are always built from the same source.
const (
	CommandAddPublication CommandType = iota + 1
	CommandRemovePublication
	CommandAddExclusivePublication
	CommandAddSubscription
	CommandRemoveSubscription
	CommandClientKeepalive
	CommandAddDestination
	CommandRemoveDestination
	CommandAddCounter
	CommandRemoveCounter
	CommandClientClose
	CommandAddRcvDestination
	CommandRemoveRcvDestination
	CommandTerminateDriver
)

func (c CommandType) String() string {
	switch c {
	case CommandAddPublication:
		return "ADD_PUBLICATION"
	case CommandRemovePublication:
		return "REMOVE_PUBLICATION"
	case CommandAddExclusivePublication:
		return "ADD_EXCLUSIVE_PUBLICATION"
	case CommandAddSubscription:
		return "ADD_SUBSCRIPTION"
	case CommandRemoveSubscription:
		return "REMOVE_SUBSCRIPTION"
	case CommandClientKeepalive:
		return "CLIENT_KEEPALIVE"
	case CommandAddDestination:
		return "ADD_DESTINATION"
	case CommandRemoveDestination:
		return "REMOVE_DESTINATION"
	case CommandAddCounter:
		return "ADD_COUNTER"
	case CommandRemoveCounter:
		return "REMOVE_COUNTER"
	case CommandClientClose:
		return "CLIENT_CLOSE"
	case CommandAddRcvDestination:
		return "ADD_RCV_DESTINATION"
	case CommandRemoveRcvDestination:
		return "REMOVE_RCV_DESTINATION"
	case CommandTerminateDriver:
		return "TERMINATE_DRIVER"
	default:
		return fmt.Sprintf("CommandType(%d)", int32(c))
	}
}

// DriverResponse identifies a message broadcast from the driver to its
// clients over the to-clients broadcast buffer.
type DriverResponse int32

// Driver response identifiers, numbered in a distinct range from
// CommandType so a stray value can't silently be misread as the other
// kind.
const (
	ResponseOnError DriverResponse = iota + 1001
	ResponseOnAvailableImage
	ResponseOnPublicationReady
	ResponseOnOperationSuccess
	ResponseOnUnavailableImage
	ResponseOnExclusivePublicationReady
	ResponseOnSubscriptionReady
	ResponseOnCounterReady
	ResponseOnUnavailableCounter
	ResponseOnClientTimeout
)

func (d DriverResponse) String() string {
	switch d {
	case ResponseOnError:
		return "ON_ERROR"
	case ResponseOnAvailableImage:
		return "ON_AVAILABLE_IMAGE"
	case ResponseOnPublicationReady:
		return "ON_PUBLICATION_READY"
	case ResponseOnOperationSuccess:
		return "ON_OPERATION_SUCCESS"
	case ResponseOnUnavailableImage:
		return "ON_UNAVAILABLE_IMAGE"
	case ResponseOnExclusivePublicationReady:
		return "ON_EXCLUSIVE_PUBLICATION_READY"
	case ResponseOnSubscriptionReady:
		return "ON_SUBSCRIPTION_READY"
	case ResponseOnCounterReady:
		return "ON_COUNTER_READY"
	case ResponseOnUnavailableCounter:
		return "ON_UNAVAILABLE_COUNTER"
	case ResponseOnClientTimeout:
		return "ON_CLIENT_TIMEOUT"
	default:
		return fmt.Sprintf("DriverResponse(%d)", int32(d))
	}
}

// correlatedMessageLength is the fixed size of the client_id/correlation_id
// pair every command in this protocol leads with.
const correlatedMessageLength = 16

// correlatedMessage is a flyweight over the client_id/correlation_id
// header shared by every command, overlaid onto the front of a caller-
// supplied scratch view.
type correlatedMessage struct {
	view *atomicbuffer.View
}

func (m correlatedMessage) clientID() (int64, error) {
	return m.view.ReadInt64(0)
}

func (m correlatedMessage) putClientID(value int64) error {
	return m.view.WriteInt64(0, value)
}

func (m correlatedMessage) correlationID() (int64, error) {
	return m.view.ReadInt64(8)
}

func (m correlatedMessage) putCorrelationID(value int64) error {
	return m.view.WriteInt64(8, value)
}

// putString writes a length-prefixed UTF-8 string at offset, returning
// the offset one past its end. A string that would run past the end of
// the command scratch buffer is rejected with ccerr.InsufficientCapacity
// before anything is written, rather than surfacing as a bounds-check
// failure partway through.
func putString(view *atomicbuffer.View, offset int32, value string) (int32, error) {
	end := offset + 4 + int32(len(value))
	if end > scratchBufferLength {
		return 0, fmt.Errorf("driverproxy: string of length %d at offset %d would exceed the %d-byte command buffer: %w", len(value), offset, scratchBufferLength, ccerr.InsufficientCapacity)
	}
	if err := view.WriteInt32(offset, int32(len(value))); err != nil {
		return 0, err
	}
	if err := view.CopyFromBytes(offset+4, []byte(value), 0, int32(len(value))); err != nil {
		return 0, err
	}
	return end, nil
}

func getString(view *atomicbuffer.View, offset int32) (string, int32, error) {
	length, err := view.ReadInt32(offset)
	if err != nil {
		return "", 0, err
	}
	if length < 0 {
		return "", 0, fmt.Errorf("driverproxy: negative string length %d: %w", length, ccerr.IllegalState)
	}
	if err := view.BoundsCheck(offset+4, length); err != nil {
		return "", 0, err
	}
	return string(view.Bytes()[offset+4 : offset+4+length]), offset + 4 + length, nil
}

// publicationMessage lays out a request to add a (non-exclusive or
// exclusive) publication:
//
//	correlated message (16) | stream id (4) | channel length (4) | channel
type publicationMessage struct {
	view *atomicbuffer.View
}

const publicationStreamIDOffset = correlatedMessageLength
const publicationChannelLengthOffset = publicationStreamIDOffset + 4

func (m publicationMessage) put(clientID, correlationID int64, streamID int32, channel string) (int32, error) {
	cm := correlatedMessage{m.view}
	if err := cm.putClientID(clientID); err != nil {
		return 0, err
	}
	if err := cm.putCorrelationID(correlationID); err != nil {
		return 0, err
	}
	if err := m.view.WriteInt32(publicationStreamIDOffset, streamID); err != nil {
		return 0, err
	}
	end, err := putString(m.view, publicationChannelLengthOffset, channel)
	if err != nil {
		return 0, err
	}
	return end, nil
}

// subscriptionMessage lays out a request to add a subscription:
//
//	correlated message (16) | registration correlation id (8) |
//	stream id (4) | channel length (4) | channel
type subscriptionMessage struct {
	view *atomicbuffer.View
}

const subscriptionRegistrationCorrelationIDOffset = correlatedMessageLength
const subscriptionStreamIDOffset = subscriptionRegistrationCorrelationIDOffset + 8
const subscriptionChannelLengthOffset = subscriptionStreamIDOffset + 4

func (m subscriptionMessage) put(clientID, correlationID, registrationCorrelationID int64, streamID int32, channel string) (int32, error) {
	cm := correlatedMessage{m.view}
	if err := cm.putClientID(clientID); err != nil {
		return 0, err
	}
	if err := cm.putCorrelationID(correlationID); err != nil {
		return 0, err
	}
	if err := m.view.WriteInt64(subscriptionRegistrationCorrelationIDOffset, registrationCorrelationID); err != nil {
		return 0, err
	}
	if err := m.view.WriteInt32(subscriptionStreamIDOffset, streamID); err != nil {
		return 0, err
	}
	end, err := putString(m.view, subscriptionChannelLengthOffset, channel)
	if err != nil {
		return 0, err
	}
	return end, nil
}

// removeMessage lays out a request to remove a previously registered
// publication, subscription, destination, or counter, identified by its
// registration id:
//
//	correlated message (16) | registration id (8)
type removeMessage struct {
	view *atomicbuffer.View
}

const removeRegistrationIDOffset = correlatedMessageLength
const removeMessageLength = removeRegistrationIDOffset + 8

func (m removeMessage) put(clientID, correlationID, registrationID int64) (int32, error) {
	cm := correlatedMessage{m.view}
	if err := cm.putClientID(clientID); err != nil {
		return 0, err
	}
	if err := cm.putCorrelationID(correlationID); err != nil {
		return 0, err
	}
	if err := m.view.WriteInt64(removeRegistrationIDOffset, registrationID); err != nil {
		return 0, err
	}
	return removeMessageLength, nil
}

// terminateDriverMessage lays out a request to terminate the driver,
// carrying an optional authentication token:
//
//	correlated message (16) | token length (4) | token
type terminateDriverMessage struct {
	view *atomicbuffer.View
}

const terminateTokenLengthOffset = correlatedMessageLength
const terminateTokenOffset = terminateTokenLengthOffset + 4

func (m terminateDriverMessage) put(clientID int64, token []byte) (int32, error) {
	end := terminateTokenOffset + int32(len(token))
	if end > scratchBufferLength {
		return 0, fmt.Errorf("driverproxy: termination token of length %d would exceed the %d-byte command buffer: %w", len(token), scratchBufferLength, ccerr.InsufficientCapacity)
	}

	cm := correlatedMessage{m.view}
	if err := cm.putClientID(clientID); err != nil {
		return 0, err
	}
	if err := cm.putCorrelationID(-1); err != nil {
		return 0, err
	}
	if err := m.view.WriteInt32(terminateTokenLengthOffset, int32(len(token))); err != nil {
		return 0, err
	}
	if len(token) > 0 {
		if err := m.view.CopyFromBytes(terminateTokenOffset, token, 0, int32(len(token))); err != nil {
			return 0, err
		}
	}
	return end, nil
}
