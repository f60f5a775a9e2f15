// ccerr.go: Shared error taxonomy for the client transport
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package ccerr defines the small error taxonomy shared by every layer of
// the client transport: atomicbuffer, ringbuffer, broadcast, cnc, and
// driverproxy all surface failures as one of these four sentinels, wrapped
// with fmt.Errorf for context and unwrapped with errors.Is.
package ccerr

import "errors"

// IllegalArgument marks a precondition violation caught by the callee:
// a non-power-of-two capacity, a non-positive message type, an oversize
// message length.
var IllegalArgument = errors.New("illegal argument")

// OutOfBounds marks an indexed access outside the backing region.
var OutOfBounds = errors.New("out of bounds")

// InsufficientCapacity marks a write-path signal that there is no room.
// The ring buffer's Write surfaces this as a (false, nil) return rather
// than this error; driverproxy surfaces it as an error for command
// payloads that are known to be oversized before ever touching the ring.
var InsufficientCapacity = errors.New("insufficient capacity")

// IllegalState marks an observed inconsistency that is not the caller's
// fault but means the operation cannot continue meaningfully: a broadcast
// copy lapped mid-poll, or a ring write that unexpectedly returned false.
var IllegalState = errors.New("illegal state")
