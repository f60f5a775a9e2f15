// atomicbuffer.go: Bounds-checked atomic byte view over shared memory
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package atomicbuffer implements the synchronization boundary every
// other package in this module sits on top of: a typed, bounds-checked
// view over a mutable byte region with four ordering flavours (plain,
// ordered/volatile, and sequentially-consistent atomic read-modify-write).
//
// Every cross-thread or cross-process observation of shared state must go
// through an ordered read or an atomic; every publication must go through
// an ordered write or an atomic. The plain accessors exist only to read
// fields the caller has already fenced some other way (e.g. a
// single-threaded consumer re-reading its own just-published header).
//
// The backing region may be an owned []byte, a slice borrowed from
// another View, or bytes obtained by mapping a file — the mapping syscall
// itself is the caller's concern; this package only ever receives an
// already-live []byte.
package atomicbuffer

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/agilira/concord/ccerr"
)

func init() {
	// The wire format and the ordered/atomic accessors below both assume
	// the host's native integer layout matches the little-endian wire
	// format. Every platform Go supports for this kind of shared-memory
	// client (amd64, arm64) is little-endian; this check exists so a
	// port to a big-endian target fails loudly at process start instead
	// of silently corrupting the ring.
	var probe uint16 = 1
	if (*(*[2]byte)(unsafe.Pointer(&probe)))[0] != 1 {
		panic("concord/atomicbuffer: big-endian platforms are not supported")
	}
}

// View is a mutable accessor over a contiguous byte region. Its identity
// is the backing region; its length is the region's length. A View is
// destroyed (in the sense of no longer being safe to use) when the
// backing region is released by whatever owns it — mmap teardown, or the
// owning slice going out of scope.
type View struct {
	buf []byte
}

// Wrap constructs a View borrowing buf. No copy is made; writes through
// the View mutate buf in place.
func Wrap(buf []byte) *View {
	return &View{buf: buf}
}

// Len returns the length of the backing region in bytes.
func (v *View) Len() int {
	return len(v.buf)
}

// Bytes exposes the backing region directly. Callers that bypass the
// ordering discipline documented on this package are responsible for not
// racing with a concurrent producer or consumer.
func (v *View) Bytes() []byte {
	return v.buf
}

// BoundsCheck succeeds iff offset >= 0 && size >= 0 && offset+size <= Len().
func (v *View) BoundsCheck(offset, size int32) error {
	if offset < 0 || size < 0 || int64(offset)+int64(size) > int64(len(v.buf)) {
		return fmt.Errorf("atomicbuffer: offset %d size %d exceeds length %d: %w", offset, size, len(v.buf), ccerr.OutOfBounds)
	}
	return nil
}

func (v *View) ptr32(offset int32) (*int32, error) {
	if err := v.BoundsCheck(offset, 4); err != nil {
		return nil, err
	}
	return (*int32)(unsafe.Pointer(&v.buf[offset])), nil
}

func (v *View) ptr64(offset int32) (*int64, error) {
	if err := v.BoundsCheck(offset, 8); err != nil {
		return nil, err
	}
	return (*int64)(unsafe.Pointer(&v.buf[offset])), nil
}

// ReadInt32 performs a plain (unordered) 32-bit read.
func (v *View) ReadInt32(offset int32) (int32, error) {
	p, err := v.ptr32(offset)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// WriteInt32 performs a plain (unordered) 32-bit write.
func (v *View) WriteInt32(offset int32, value int32) error {
	p, err := v.ptr32(offset)
	if err != nil {
		return err
	}
	*p = value
	return nil
}

// ReadInt64 performs a plain (unordered) 64-bit read.
func (v *View) ReadInt64(offset int32) (int64, error) {
	p, err := v.ptr64(offset)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// WriteInt64 performs a plain (unordered) 64-bit write.
func (v *View) WriteInt64(offset int32, value int64) error {
	p, err := v.ptr64(offset)
	if err != nil {
		return err
	}
	*p = value
	return nil
}

// ReadInt32Volatile performs an acquire-equivalent ordered 32-bit read:
// safe to pair with a release-ordered write from another thread or
// process observing the same region.
func (v *View) ReadInt32Volatile(offset int32) (int32, error) {
	p, err := v.ptr32(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadInt32(p), nil
}

// WriteInt32Ordered performs a release-equivalent ordered 32-bit write.
func (v *View) WriteInt32Ordered(offset int32, value int32) error {
	p, err := v.ptr32(offset)
	if err != nil {
		return err
	}
	atomic.StoreInt32(p, value)
	return nil
}

// ReadInt64Volatile performs an acquire-equivalent ordered 64-bit read.
func (v *View) ReadInt64Volatile(offset int32) (int64, error) {
	p, err := v.ptr64(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadInt64(p), nil
}

// WriteInt64Ordered performs a release-equivalent ordered 64-bit write.
func (v *View) WriteInt64Ordered(offset int32, value int64) error {
	p, err := v.ptr64(offset)
	if err != nil {
		return err
	}
	atomic.StoreInt64(p, value)
	return nil
}

// FetchAddInt64 performs a sequentially-consistent atomic fetch-add on a
// 64-bit integer at offset, returning the pre-increment value.
func (v *View) FetchAddInt64(offset int32, delta int64) (int64, error) {
	p, err := v.ptr64(offset)
	if err != nil {
		return 0, err
	}
	return atomic.AddInt64(p, delta) - delta, nil
}

// CompareAndSwapInt64 performs a sequentially-consistent compare-and-set:
// if the value at offset equals old, it is replaced with new and true is
// returned; otherwise the memory is left untouched and false is returned.
func (v *View) CompareAndSwapInt64(offset int32, old, new int64) (bool, error) {
	p, err := v.ptr64(offset)
	if err != nil {
		return false, err
	}
	return atomic.CompareAndSwapInt64(p, old, new), nil
}

// SetMemory memsets length bytes starting at offset to value.
func (v *View) SetMemory(offset, length int32, value byte) error {
	if err := v.BoundsCheck(offset, length); err != nil {
		return err
	}
	region := v.buf[offset : offset+length]
	for i := range region {
		region[i] = value
	}
	return nil
}

// CopyFrom copies length bytes from src[srcOffset:] into this view at
// dstOffset, bounds-checking both regions. It is a plain (unordered)
// byte copy: callers that need publication semantics must follow it with
// an ordered write of the record's commit field.
func (v *View) CopyFrom(dstOffset int32, src *View, srcOffset, length int32) error {
	if err := v.BoundsCheck(dstOffset, length); err != nil {
		return err
	}
	if err := src.BoundsCheck(srcOffset, length); err != nil {
		return err
	}
	copy(v.buf[dstOffset:dstOffset+length], src.buf[srcOffset:srcOffset+length])
	return nil
}

// CopyFromBytes copies length bytes from src[srcOffset:] into this view
// at dstOffset. It is the entry point used by producers writing a record
// payload from a plain Go byte slice rather than another View.
func (v *View) CopyFromBytes(dstOffset int32, src []byte, srcOffset, length int32) error {
	if err := v.BoundsCheck(dstOffset, length); err != nil {
		return err
	}
	if srcOffset < 0 || length < 0 || int64(srcOffset)+int64(length) > int64(len(src)) {
		return fmt.Errorf("atomicbuffer: source offset %d length %d exceeds length %d: %w", srcOffset, length, len(src), ccerr.OutOfBounds)
	}
	copy(v.buf[dstOffset:dstOffset+length], src[srcOffset:srcOffset+length])
	return nil
}
