// broadcast.go: Single-producer/multi-consumer broadcast buffer
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package broadcast implements the single-producer/multi-consumer
// broadcast buffer used for driver-to-client responses: one producer
// (the media driver) overwrites the buffer without waiting for readers;
// any number of consumers poll it independently and detect loss via lap
// counting instead of being guaranteed delivery.
package broadcast

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/agilira/concord/atomicbuffer"
	"github.com/agilira/concord/ccerr"
	"github.com/agilira/concord/internal/bitutil"
)

const (
	// CacheLine is the assumed CPU cache line length in bytes.
	CacheLine = 64

	// TrailerLength is the fixed size of the broadcast buffer's
	// metadata trailer: 2 cache lines.
	TrailerLength = CacheLine * 2

	// HeaderLength is the size of a record header: an int32 length
	// followed by an int32 type identifier. Same layout as the ring
	// buffer's record header.
	HeaderLength = 8

	// RecordAlignment is the alignment boundary every record is padded
	// to.
	RecordAlignment = HeaderLength

	// PaddingMsgTypeID marks a record emitted by the producer to skip
	// the tail of the buffer on wrap. Never a real message.
	PaddingMsgTypeID int32 = -1

	tailIntentOffset = 0
	tailOffset        = 8
	latestOffset      = 16
)

// Buffer is the producer-facing side of the broadcast transmission
// stream. The media driver (out of scope for this module) is the only
// expected writer; this type exists mainly to give receivers somewhere
// to read the same offset constants from, and so tests can drive the
// producer side without duplicating the trailer layout.
type Buffer struct {
	view     *atomicbuffer.View
	capacity int32
	mask     int32

	tailIntentIndex int32
	tailIndex       int32
	latestIndex     int32
}

// NewBuffer wraps region as a broadcast buffer. capacity =
// len(region) - TrailerLength must be a power of two.
func NewBuffer(region []byte) (*Buffer, error) {
	if len(region) < TrailerLength {
		return nil, fmt.Errorf("broadcast: region length %d smaller than trailer length %d: %w", len(region), TrailerLength, ccerr.IllegalArgument)
	}
	capacity := int32(len(region) - TrailerLength)
	if !bitutil.IsPowerOfTwo(capacity) {
		return nil, fmt.Errorf("broadcast: capacity %d is not a power of two: %w", capacity, ccerr.IllegalArgument)
	}
	return &Buffer{
		view:            atomicbuffer.Wrap(region),
		capacity:        capacity,
		mask:            capacity - 1,
		tailIntentIndex: capacity + tailIntentOffset,
		tailIndex:       capacity + tailOffset,
		latestIndex:     capacity + latestOffset,
	}, nil
}

// Capacity returns the payload capacity of the buffer, excluding the
// trailer.
func (b *Buffer) Capacity() int32 {
	return b.capacity
}

// Transmit publishes a single record: it writes tail_intent before the
// payload, the payload itself, the record header, and finally tail —
// establishing the ordering Validate depends on. Transmit never blocks on
// readers; an overrun reader will simply fail its next Validate call.
//
// This is the producer half of the protocol, included for symmetry and
// testability even though in a deployed system the media driver process
// is the one that plays this role; receivers only ever need Receiver.
func (b *Buffer) Transmit(msgTypeID int32, payload []byte) error {
	recordLen := int32(len(payload)) + HeaderLength
	required := bitutil.Align(recordLen, RecordAlignment)

	tail, err := b.view.ReadInt64(b.tailIndex)
	if err != nil {
		return err
	}
	recordOffset := int32(tail & int64(b.mask))

	toEnd := b.capacity - recordOffset
	if required > toEnd {
		if err := b.view.WriteInt64Ordered(b.tailIntentIndex, tail+int64(toEnd)+int64(required)); err != nil {
			return err
		}
		if err := b.view.WriteInt32Ordered(recordOffset, toEnd); err != nil {
			return err
		}
		if err := b.view.WriteInt32Ordered(recordOffset+4, PaddingMsgTypeID); err != nil {
			return err
		}
		tail += int64(toEnd)
		recordOffset = 0
	}

	if err := b.view.WriteInt64Ordered(b.tailIntentIndex, tail+int64(required)); err != nil {
		return err
	}
	if err := b.view.CopyFromBytes(recordOffset+HeaderLength, payload, 0, int32(len(payload))); err != nil {
		return err
	}
	if err := b.view.WriteInt64Ordered(recordOffset, bitutil.PackRecordHeader(recordLen, msgTypeID)); err != nil {
		return err
	}
	if err := b.view.WriteInt64Ordered(b.latestIndex, tail); err != nil {
		return err
	}
	if err := b.view.WriteInt64Ordered(b.tailIndex, tail+int64(required)); err != nil {
		return err
	}
	return nil
}

// Receiver polls a broadcast buffer for records published at or after its
// construction time, detecting producer overruns ("laps") and refusing to
// hand back a record it can no longer guarantee is intact.
type Receiver struct {
	view     *atomicbuffer.View
	capacity int32
	mask     int32

	tailIntentIndex int32
	tailIndex       int32
	latestIndex     int32

	recordOffset int32
	cursor       int64
	nextRecord   int64
	lappedCount  int64

	log *zap.Logger
}

// NewReceiver constructs a receiver over region, seeding its cursor from
// the buffer's current latest position: it will only observe records
// published at or after construction, unless it later detects a lap.
func NewReceiver(region []byte, logger *zap.Logger) (*Receiver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(region) < TrailerLength {
		return nil, fmt.Errorf("broadcast: region length %d smaller than trailer length %d: %w", len(region), TrailerLength, ccerr.IllegalArgument)
	}
	capacity := int32(len(region) - TrailerLength)
	if !bitutil.IsPowerOfTwo(capacity) {
		return nil, fmt.Errorf("broadcast: capacity %d is not a power of two: %w", capacity, ccerr.IllegalArgument)
	}

	view := atomicbuffer.Wrap(region)
	latestIndex := capacity + latestOffset
	cursor, err := view.ReadInt64(latestIndex)
	if err != nil {
		return nil, err
	}

	return &Receiver{
		view:            view,
		capacity:        capacity,
		mask:            capacity - 1,
		tailIntentIndex: capacity + tailIntentOffset,
		tailIndex:       capacity + tailOffset,
		latestIndex:     latestIndex,
		recordOffset:    int32(cursor & int64(capacity-1)),
		cursor:          cursor,
		nextRecord:      cursor,
		log:             logger,
	}, nil
}

// Capacity returns the payload capacity of the buffer.
func (r *Receiver) Capacity() int32 {
	return r.capacity
}

// LappedCount returns the number of times this receiver has detected the
// producer overwriting a record it had not yet caught up to.
func (r *Receiver) LappedCount() int64 {
	return r.lappedCount
}

// ReceiveNext is a non-blocking poll: it returns true and advances to the
// next record if one is available, false if the producer hasn't
// published anything new. On true, MsgTypeID/Length/Offset describe the
// record until the next call to ReceiveNext or Validate.
func (r *Receiver) ReceiveNext() (bool, error) {
	tail, err := r.view.ReadInt64Volatile(r.tailIndex)
	if err != nil {
		return false, err
	}
	if tail <= r.nextRecord {
		return false, nil
	}

	cursor := r.nextRecord
	if !r.validateAt(cursor) {
		r.lappedCount++
		r.log.Debug("broadcast receiver lapped by producer", zap.Int64("lapped_count", r.lappedCount))
		cursor, err = r.view.ReadInt64(r.latestIndex)
		if err != nil {
			return false, err
		}
	}

	recordOffset := int32(cursor & int64(r.mask))
	length, err := r.view.ReadInt32(recordOffset)
	if err != nil {
		return false, err
	}
	cursorStored := cursor
	next := cursor + int64(bitutil.Align(length, RecordAlignment))

	typeID, err := r.view.ReadInt32(recordOffset + 4)
	if err != nil {
		return false, err
	}
	if typeID == PaddingMsgTypeID {
		recordOffset = 0
		cursorStored = next
		zeroLength, err := r.view.ReadInt32(0)
		if err != nil {
			return false, err
		}
		next = cursorStored + int64(bitutil.Align(zeroLength, RecordAlignment))
	}

	r.recordOffset = recordOffset
	r.cursor = cursorStored
	r.nextRecord = next
	return true, nil
}

// MsgTypeID returns the message type identifier of the current record.
func (r *Receiver) MsgTypeID() (int32, error) {
	return r.view.ReadInt32(recordTypeOffset(r.recordOffset))
}

// Length returns the payload length (excluding header) of the current
// record.
func (r *Receiver) Length() (int32, error) {
	length, err := r.view.ReadInt32(recordLengthOffset(r.recordOffset))
	if err != nil {
		return 0, err
	}
	return length - HeaderLength, nil
}

// Offset returns the absolute byte offset of the current record's
// payload within the backing region.
func (r *Receiver) Offset() int32 {
	return r.recordOffset + HeaderLength
}

// Validate reports whether the record this receiver last observed is
// still intact: the producer has not yet begun a write that would
// overwrite it. Consumers must call Validate after reading a record's
// payload; false means the bytes just read may be torn and must be
// discarded.
func (r *Receiver) Validate() bool {
	return r.validateAt(r.cursor)
}

func (r *Receiver) validateAt(cursor int64) bool {
	tailIntent, err := r.view.ReadInt64Volatile(r.tailIntentIndex)
	if err != nil {
		return false
	}
	return cursor+int64(r.capacity) > tailIntent
}

func recordLengthOffset(recordOffset int32) int32 { return recordOffset }
func recordTypeOffset(recordOffset int32) int32   { return recordOffset + 4 }

// CopyReceiver wraps a Receiver with a fixed-size scratch buffer,
// delivering a stable snapshot of each record to its handler instead of
// a view directly into memory the producer may be actively overwriting.
type CopyReceiver struct {
	receiver *Receiver
	scratch  []byte
}

// NewCopyReceiver wraps receiver with a scratch buffer of the given
// capacity. Records longer than scratchCapacity are rejected with
// ccerr.IllegalState rather than silently growing the scratch buffer: the
// caller is expected to size it for its own known maximum message.
func NewCopyReceiver(receiver *Receiver, scratchCapacity int32) *CopyReceiver {
	return &CopyReceiver{
		receiver: receiver,
		scratch:  make([]byte, scratchCapacity),
	}
}

// Receive attempts to receive a single message and deliver it to handler.
// Returns 1 if a message was delivered, 0 if none was available. Fails
// with ccerr.IllegalState if a lap was detected mid-poll, if the record
// is too large for the scratch buffer, or if the copied payload could not
// be validated as intact after copying.
func (c *CopyReceiver) Receive(handler func(msgTypeID int32, payload []byte)) (int, error) {
	lastSeenLapped := c.receiver.LappedCount()

	available, err := c.receiver.ReceiveNext()
	if err != nil {
		return 0, err
	}
	if !available {
		return 0, nil
	}

	if lastSeenLapped != c.receiver.LappedCount() {
		return 0, fmt.Errorf("broadcast: lapped while polling: %w", ccerr.IllegalState)
	}

	length, err := c.receiver.Length()
	if err != nil {
		return 0, err
	}
	if length > int32(len(c.scratch)) {
		return 0, fmt.Errorf("broadcast: record length %d exceeds scratch capacity %d: %w", length, len(c.scratch), ccerr.IllegalState)
	}

	msgTypeID, err := c.receiver.MsgTypeID()
	if err != nil {
		return 0, err
	}
	if err := c.receiver.view.BoundsCheck(c.receiver.Offset(), length); err != nil {
		return 0, err
	}
	copy(c.scratch, c.receiver.view.Bytes()[c.receiver.Offset():c.receiver.Offset()+length])

	if !c.receiver.Validate() {
		return 0, fmt.Errorf("broadcast: record invalidated during copy: %w", ccerr.IllegalState)
	}

	handler(msgTypeID, c.scratch[:length])
	return 1, nil
}
