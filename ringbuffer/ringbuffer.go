// ringbuffer.go: Many-to-one ring buffer for the client-to-driver command stream
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package ringbuffer implements the bounded multi-producer/single-consumer
// ring buffer used for the client-to-driver command stream: arbitrarily
// many producer threads (possibly in unrelated processes sharing the
// backing mapping) claim and write variable-length records; exactly one
// consumer thread drains them.
//
// The algorithm — claim-capacity CAS loop, negative-length in-progress
// marker, wrap padding, zero-on-drain cleanup — follows the Aeron
// many-to-one ring buffer unchanged.
package ringbuffer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/agilira/concord/atomicbuffer"
	"github.com/agilira/concord/ccerr"
	"github.com/agilira/concord/internal/bitutil"
)

const (
	// CacheLine is the assumed length of a CPU cache line in bytes. Each
	// trailer field gets its own cache line so that producer and
	// consumer writes never false-share.
	CacheLine = 64

	// TrailerLength is the fixed size of the metadata trailer following
	// the payload region: 12 cache lines.
	TrailerLength = CacheLine * 12

	// HeaderLength is the size of a record header: an int32 length
	// followed by an int32 type identifier.
	HeaderLength = 8

	// RecordAlignment is the alignment boundary every record is padded
	// to. Equal to HeaderLength by construction.
	RecordAlignment = HeaderLength

	// PaddingMsgTypeID marks a record as padding: space reserved only to
	// skip the tail of the ring on wrap. Never delivered to a handler.
	PaddingMsgTypeID int32 = -1

	tailPositionOffset       = CacheLine * 2
	headCachePositionOffset  = CacheLine * 4
	headPositionOffset       = CacheLine * 6
	correlationCounterOffset = CacheLine * 8
	consumerHeartbeatOffset  = CacheLine * 10

	insufficientCapacity int32 = -2
)

// ManyToOneRingBuffer is the MPSC ring buffer used for the client-to-driver
// command stream.
type ManyToOneRingBuffer struct {
	view *atomicbuffer.View

	capacity     int32
	maxMsgLength int32

	tailPositionIndex       int32
	headCachePositionIndex  int32
	headPositionIndex       int32
	correlationCounterIndex int32
	consumerHeartbeatIndex  int32

	log *zap.Logger
}

// New wraps region as a many-to-one ring buffer. region must be at least
// TrailerLength bytes long, and capacity = len(region) - TrailerLength
// must be a power of two, or construction fails with ccerr.IllegalArgument.
// A nil logger is replaced with a no-op logger.
func New(region []byte, logger *zap.Logger) (*ManyToOneRingBuffer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(region) < TrailerLength {
		return nil, fmt.Errorf("ringbuffer: region length %d smaller than trailer length %d: %w", len(region), TrailerLength, ccerr.IllegalArgument)
	}
	capacity := int32(len(region) - TrailerLength)
	if !bitutil.IsPowerOfTwo(capacity) {
		return nil, fmt.Errorf("ringbuffer: capacity %d is not a power of two: %w", capacity, ccerr.IllegalArgument)
	}

	return &ManyToOneRingBuffer{
		view:                    atomicbuffer.Wrap(region),
		capacity:                capacity,
		maxMsgLength:            capacity / 8,
		tailPositionIndex:       capacity + tailPositionOffset,
		headCachePositionIndex:  capacity + headCachePositionOffset,
		headPositionIndex:       capacity + headPositionOffset,
		correlationCounterIndex: capacity + correlationCounterOffset,
		consumerHeartbeatIndex:  capacity + consumerHeartbeatOffset,
		log:                     logger,
	}, nil
}

// Capacity returns the payload capacity of the ring, excluding the
// trailer.
func (r *ManyToOneRingBuffer) Capacity() int32 {
	return r.capacity
}

// MaxMsgLength returns the largest payload length write will accept.
func (r *ManyToOneRingBuffer) MaxMsgLength() int32 {
	return r.maxMsgLength
}

// NextCorrelationID atomically returns the next unique identifier in a
// monotonically increasing sequence, starting at zero for a fresh ring.
func (r *ManyToOneRingBuffer) NextCorrelationID() int64 {
	prev, err := r.view.FetchAddInt64(r.correlationCounterIndex, 1)
	if err != nil {
		// correlationCounterIndex is computed from a bounds-checked
		// capacity during New; this can only fail if the caller has
		// corrupted the region's length out from under us.
		panic(fmt.Errorf("ringbuffer: correlation counter offset invalid: %w", err))
	}
	return prev
}

// ConsumerHeartbeatTime returns the last-known-alive timestamp the
// consumer wrote to the trailer (milliseconds since the Unix epoch, by
// convention of the caller that stamps it).
func (r *ManyToOneRingBuffer) ConsumerHeartbeatTime() int64 {
	t, err := r.view.ReadInt64Volatile(r.consumerHeartbeatIndex)
	if err != nil {
		panic(fmt.Errorf("ringbuffer: consumer heartbeat offset invalid: %w", err))
	}
	return t
}

// StampConsumerHeartbeat records the consumer's liveness timestamp. It is
// the consumer's side of ConsumerHeartbeatTime: called periodically by
// whatever drives Read, never by a producer.
func (r *ManyToOneRingBuffer) StampConsumerHeartbeat(timestampMillis int64) {
	if err := r.view.WriteInt64Ordered(r.consumerHeartbeatIndex, timestampMillis); err != nil {
		panic(fmt.Errorf("ringbuffer: consumer heartbeat offset invalid: %w", err))
	}
}

func recordLength(header int64) int32 {
	return int32(header)
}

func messageTypeID(header int64) int32 {
	return int32(header >> 32)
}

// Write attempts to publish a single record of the given message type
// carrying length bytes from src[srcOffset:]. It fails with
// ccerr.IllegalArgument if msgTypeID < 1 or length exceeds MaxMsgLength.
// It returns (false, nil) — a non-fatal back-pressure signal, not an
// error — when there isn't enough room for the record right now.
func (r *ManyToOneRingBuffer) Write(msgTypeID int32, src []byte, srcOffset, length int32) (bool, error) {
	if msgTypeID < 1 {
		return false, fmt.Errorf("ringbuffer: message type %d must be >= 1: %w", msgTypeID, ccerr.IllegalArgument)
	}
	if length > r.maxMsgLength {
		return false, fmt.Errorf("ringbuffer: message length %d exceeds max %d: %w", length, r.maxMsgLength, ccerr.IllegalArgument)
	}

	recordLen := length + HeaderLength
	required := bitutil.Align(recordLen, RecordAlignment)

	recordIndex, err := r.claimCapacity(required)
	if err != nil {
		return false, err
	}
	if recordIndex == insufficientCapacity {
		r.log.Debug("ring buffer write back-pressured", zap.Int32("msg_type_id", msgTypeID), zap.Int32("length", length))
		return false, nil
	}

	if err := r.view.WriteInt64Ordered(recordIndex, bitutil.PackRecordHeader(-length, msgTypeID)); err != nil {
		return false, err
	}
	if err := r.view.CopyFromBytes(recordIndex+HeaderLength, src, srcOffset, length); err != nil {
		return false, err
	}
	if err := r.view.WriteInt32Ordered(recordIndex, recordLen); err != nil {
		return false, err
	}

	return true, nil
}

// claimCapacity reserves required contiguous bytes for a producer,
// inserting a padding record and wrapping to offset 0 if the claim would
// otherwise cross the end of the ring. Returns insufficientCapacity if no
// producer-visible progress is possible right now.
func (r *ManyToOneRingBuffer) claimCapacity(required int32) (int32, error) {
	mask := r.capacity - 1

	head, err := r.view.ReadInt64Volatile(r.headCachePositionIndex)
	if err != nil {
		return 0, err
	}

	var tail int64
	var tailIndex int32
	var padding int32
	retries := 0

	for {
		tail, err = r.view.ReadInt64Volatile(r.tailPositionIndex)
		if err != nil {
			return 0, err
		}
		availableCapacity := r.capacity - int32(tail-head)

		if required > availableCapacity {
			head, err = r.view.ReadInt64Volatile(r.headPositionIndex)
			if err != nil {
				return 0, err
			}
			if required > r.capacity-int32(tail-head) {
				return insufficientCapacity, nil
			}
			if err := r.view.WriteInt64Ordered(r.headCachePositionIndex, head); err != nil {
				return 0, err
			}
		}

		padding = 0
		tailIndex = int32(tail & int64(mask))
		toBufferEnd := r.capacity - tailIndex

		if required > toBufferEnd {
			headIndex := int32(head & int64(mask))
			if required > headIndex {
				head, err = r.view.ReadInt64Volatile(r.headPositionIndex)
				if err != nil {
					return 0, err
				}
				headIndex = int32(head & int64(mask))
				if required > headIndex {
					return insufficientCapacity, nil
				}
				if err := r.view.WriteInt64Ordered(r.headCachePositionIndex, head); err != nil {
					return 0, err
				}
			}
			padding = toBufferEnd
		}

		ok, err := r.view.CompareAndSwapInt64(r.tailPositionIndex, tail, tail+int64(required)+int64(padding))
		if err != nil {
			return 0, err
		}
		if ok {
			break
		}
		retries++
	}
	if retries > 0 {
		r.log.Debug("claim capacity CAS contention", zap.Int("retries", retries))
	}

	if padding != 0 {
		if err := r.view.WriteInt64Ordered(tailIndex, bitutil.PackRecordHeader(padding, PaddingMsgTypeID)); err != nil {
			return 0, err
		}
		tailIndex = 0
	}

	return tailIndex, nil
}

// Read drains up to limit messages from the ring, invoking handler with
// each record's message type and payload slice. handler must not retain
// the payload past its return; it may be re-entered across successive
// calls. Returning false from handler stops the scan early (the bytes
// already scanned, including the one handler just rejected, are still
// consumed and zeroed — a handler that wants to leave a message for next
// time should not have been handed it to begin with, matching the
// single-consumer contract).
//
// Only a single goroutine may call Read on a given ring at a time.
func (r *ManyToOneRingBuffer) Read(handler func(msgTypeID int32, payload []byte) bool, limit int) (int, error) {
	head, err := r.view.ReadInt64(r.headPositionIndex)
	if err != nil {
		return 0, err
	}
	headIndex := int32(head & int64(r.capacity-1))
	contiguous := r.capacity - headIndex

	var bytesRead int32
	messagesRead := 0
	var loopErr error

	for bytesRead < contiguous && messagesRead < limit {
		recordIndex := headIndex + bytesRead
		header, err := r.view.ReadInt64Volatile(recordIndex)
		if err != nil {
			loopErr = err
			break
		}
		length := recordLength(header)
		if length <= 0 {
			break
		}
		bytesRead += bitutil.Align(length, RecordAlignment)

		typeID := messageTypeID(header)
		if typeID == PaddingMsgTypeID {
			continue
		}

		messagesRead++
		payloadStart := recordIndex + HeaderLength
		payloadEnd := recordIndex + length
		if !handler(typeID, r.view.Bytes()[payloadStart:payloadEnd]) {
			break
		}
	}

	// Cleanup runs for whatever was scanned even if the loop above broke
	// out on an error: messages already handed to handler must still be
	// retired, or the next Read would redeliver them.
	if bytesRead > 0 {
		if err := r.view.SetMemory(headIndex, bytesRead, 0); err != nil {
			if loopErr == nil {
				loopErr = err
			}
			return messagesRead, loopErr
		}
		if err := r.view.WriteInt64Ordered(r.headPositionIndex, head+int64(bytesRead)); err != nil {
			if loopErr == nil {
				loopErr = err
			}
			return messagesRead, loopErr
		}
	}

	return messagesRead, loopErr
}
