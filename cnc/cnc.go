// cnc.go: Command-and-control file layout descriptor
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package cnc describes the layout of the command-and-control file: the
// single memory-mapped region a client and the media driver share to
// find each other's ring and broadcast buffers. It owns no I/O of its
// own — callers map the file (or hand over an in-memory region for
// tests) and this package only ever slices and interprets bytes already
// in hand.
//
// File layout, in order:
//
//	Meta Data | to-driver Buffer | to-clients Buffer |
//	Counters Metadata Buffer | Counters Values Buffer | Error Log
package cnc

import (
	"fmt"

	"github.com/agilira/concord/atomicbuffer"
	"github.com/agilira/concord/ccerr"
	"github.com/agilira/concord/internal/bitutil"
)

const (
	// CacheLine is the assumed CPU cache line length in bytes.
	CacheLine = 64

	// Version is the wire format version this package reads and writes,
	// composed from (major=0, minor=0, patch=16) the same way the
	// driver stamps it.
	Version = int32(0)<<16 | int32(0)<<8 | int32(16)

	// FileName is the conventional name of the CnC file inside an Aeron
	// media driver's working directory.
	FileName = "cnc.dat"

	cncVersionOffset               = 0
	toDriverBufferLengthOffset     = 4
	toClientsBufferLengthOffset    = 8
	counterMetadataLengthOffset    = 12
	counterValuesLengthOffset      = 16
	errorLogBufferLengthOffset     = 20
	clientLivenessTimeoutOffset    = 24
	startTimestampOffset           = 32
	pidOffset                      = 40

	// metaDataStructLength is the metadata struct's natural size (48
	// bytes: 6 int32 fields + 3 int64 fields). MetaDataLength rounds it up
	// to 2 cache lines, so the first buffer region starts cache-line
	// aligned regardless of host struct packing.
	metaDataStructLength = 48
)

// MetaDataLength is the length of the metadata block at the head of a
// CnC region, including padding to the next 2-cache-line boundary.
var MetaDataLength = bitutil.Align(metaDataStructLength, CacheLine*2)

// ComposeVersion packs a (major, minor, patch) triple into the single
// int32 the wire format stores, matching the driver's own encoding.
func ComposeVersion(major, minor, patch uint8) int32 {
	return int32(major)<<16 | int32(minor)<<8 | int32(patch)
}

// MetaData is a view over the metadata block of a mapped CnC region: the
// fixed-size header describing how the rest of the region is carved up,
// plus driver identity and liveness fields.
type MetaData struct {
	view *atomicbuffer.View
}

// NewMetaData wraps region's first MetaDataLength bytes as a MetaData
// view. region must be at least MetaDataLength bytes long.
func NewMetaData(region []byte) (*MetaData, error) {
	if int32(len(region)) < MetaDataLength {
		return nil, fmt.Errorf("cnc: region length %d smaller than metadata length %d: %w", len(region), MetaDataLength, ccerr.IllegalArgument)
	}
	return &MetaData{view: atomicbuffer.Wrap(region[:MetaDataLength])}, nil
}

// CncVersion returns the wire format version stamped by whatever created
// the region. Callers must compare this against Version before trusting
// the rest of the layout.
func (m *MetaData) CncVersion() (int32, error) {
	return m.view.ReadInt32Volatile(cncVersionOffset)
}

// SetCncVersion stamps the wire format version. Must be called last
// during initialization: a reader that observes a non-zero version is
// entitled to assume every other field is already valid.
func (m *MetaData) SetCncVersion(version int32) error {
	return m.view.WriteInt32Ordered(cncVersionOffset, version)
}

// ToDriverBufferLength returns the configured length of the to-driver
// (command) ring buffer, including its trailer.
func (m *MetaData) ToDriverBufferLength() (int32, error) {
	return m.view.ReadInt32(toDriverBufferLengthOffset)
}

// SetToDriverBufferLength records the to-driver buffer's configured
// length.
func (m *MetaData) SetToDriverBufferLength(length int32) error {
	return m.view.WriteInt32(toDriverBufferLengthOffset, length)
}

// ToClientsBufferLength returns the configured length of the to-clients
// (broadcast) buffer, including its trailer.
func (m *MetaData) ToClientsBufferLength() (int32, error) {
	return m.view.ReadInt32(toClientsBufferLengthOffset)
}

// SetToClientsBufferLength records the to-clients buffer's configured
// length.
func (m *MetaData) SetToClientsBufferLength(length int32) error {
	return m.view.WriteInt32(toClientsBufferLengthOffset, length)
}

// CountersMetadataBufferLength returns the configured length of the
// counters metadata region.
func (m *MetaData) CountersMetadataBufferLength() (int32, error) {
	return m.view.ReadInt32(counterMetadataLengthOffset)
}

// SetCountersMetadataBufferLength records the counters metadata region's
// configured length.
func (m *MetaData) SetCountersMetadataBufferLength(length int32) error {
	return m.view.WriteInt32(counterMetadataLengthOffset, length)
}

// CountersValuesBufferLength returns the configured length of the
// counters values region.
func (m *MetaData) CountersValuesBufferLength() (int32, error) {
	return m.view.ReadInt32(counterValuesLengthOffset)
}

// SetCountersValuesBufferLength records the counters values region's
// configured length.
func (m *MetaData) SetCountersValuesBufferLength(length int32) error {
	return m.view.WriteInt32(counterValuesLengthOffset, length)
}

// ErrorLogBufferLength returns the configured length of the trailing
// error log region.
func (m *MetaData) ErrorLogBufferLength() (int32, error) {
	return m.view.ReadInt32(errorLogBufferLengthOffset)
}

// SetErrorLogBufferLength records the error log region's configured
// length.
func (m *MetaData) SetErrorLogBufferLength(length int32) error {
	return m.view.WriteInt32(errorLogBufferLengthOffset, length)
}

// ClientLivenessTimeoutNs returns the duration, in nanoseconds, a client
// may go without stamping its heartbeat before the driver considers it
// dead.
func (m *MetaData) ClientLivenessTimeoutNs() (int64, error) {
	return m.view.ReadInt64(clientLivenessTimeoutOffset)
}

// SetClientLivenessTimeoutNs records the client liveness timeout.
func (m *MetaData) SetClientLivenessTimeoutNs(nanos int64) error {
	return m.view.WriteInt64(clientLivenessTimeoutOffset, nanos)
}

// StartTimestampMs returns the driver's start time, in milliseconds
// since the Unix epoch.
func (m *MetaData) StartTimestampMs() (int64, error) {
	return m.view.ReadInt64(startTimestampOffset)
}

// SetStartTimestampMs records the driver's start time.
func (m *MetaData) SetStartTimestampMs(millis int64) error {
	return m.view.WriteInt64(startTimestampOffset, millis)
}

// PID returns the media driver's process identifier.
func (m *MetaData) PID() (int64, error) {
	return m.view.ReadInt64(pidOffset)
}

// SetPID records the media driver's process identifier.
func (m *MetaData) SetPID(pid int64) error {
	return m.view.WriteInt64(pidOffset, pid)
}

// Layout describes the byte ranges of each region within a mapped CnC
// file, computed from the lengths recorded in its metadata.
type Layout struct {
	ToDriverBuffer          [2]int32
	ToClientsBuffer         [2]int32
	CountersMetadataBuffer  [2]int32
	CountersValuesBuffer    [2]int32
	ErrorLogBuffer          [2]int32
}

// ComputeLayout reads the region lengths out of md and returns the byte
// offsets of each subsequent region, in file order.
func ComputeLayout(md *MetaData) (Layout, error) {
	toDriverLen, err := md.ToDriverBufferLength()
	if err != nil {
		return Layout{}, err
	}
	toClientsLen, err := md.ToClientsBufferLength()
	if err != nil {
		return Layout{}, err
	}
	countersMetaLen, err := md.CountersMetadataBufferLength()
	if err != nil {
		return Layout{}, err
	}
	countersValuesLen, err := md.CountersValuesBufferLength()
	if err != nil {
		return Layout{}, err
	}
	errorLogLen, err := md.ErrorLogBufferLength()
	if err != nil {
		return Layout{}, err
	}

	offset := MetaDataLength
	toDriver := [2]int32{offset, offset + toDriverLen}
	offset += toDriverLen
	toClients := [2]int32{offset, offset + toClientsLen}
	offset += toClientsLen
	countersMeta := [2]int32{offset, offset + countersMetaLen}
	offset += countersMetaLen
	countersValues := [2]int32{offset, offset + countersValuesLen}
	offset += countersValuesLen
	errorLog := [2]int32{offset, offset + errorLogLen}

	return Layout{
		ToDriverBuffer:         toDriver,
		ToClientsBuffer:        toClients,
		CountersMetadataBuffer: countersMeta,
		CountersValuesBuffer:   countersValues,
		ErrorLogBuffer:         errorLog,
	}, nil
}

// ToDriverBuffer slices region to the to-driver command ring buffer
// described by layout.
func ToDriverBuffer(region []byte, layout Layout) []byte {
	return region[layout.ToDriverBuffer[0]:layout.ToDriverBuffer[1]]
}

// ToClientsBuffer slices region to the to-clients broadcast buffer
// described by layout.
func ToClientsBuffer(region []byte, layout Layout) []byte {
	return region[layout.ToClientsBuffer[0]:layout.ToClientsBuffer[1]]
}

// CountersMetadataBuffer slices region to the counters metadata region
// described by layout.
func CountersMetadataBuffer(region []byte, layout Layout) []byte {
	return region[layout.CountersMetadataBuffer[0]:layout.CountersMetadataBuffer[1]]
}

// CountersValuesBuffer slices region to the counters values region
// described by layout.
func CountersValuesBuffer(region []byte, layout Layout) []byte {
	return region[layout.CountersValuesBuffer[0]:layout.CountersValuesBuffer[1]]
}

// ErrorLogBuffer slices region to the trailing error log region
// described by layout.
func ErrorLogBuffer(region []byte, layout Layout) []byte {
	return region[layout.ErrorLogBuffer[0]:layout.ErrorLogBuffer[1]]
}

// TotalLength returns the total region size implied by layout: the
// offset one past the end of the error log buffer.
func TotalLength(layout Layout) int32 {
	return layout.ErrorLogBuffer[1]
}
