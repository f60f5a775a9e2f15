// doc.go: Package-level documentation and quick start
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package concord provides the client-side plumbing for a shared-memory
// transport between application processes and a single media driver
// process: a many-to-one command ring, a one-to-many response
// broadcast, and the command-and-control file that lets independent
// processes find both without a handshake.
//
// Concord owns no driver implementation and no network I/O. It is the
// client half of the protocol only: build or open a command-and-control
// region (cnc), wrap its to-driver and to-clients sections (ringbuffer,
// broadcast), and drive them through a DriverProxy and a broadcast
// Receiver.
//
// # Quick Start
//
// Given a memory-mapped (or, for tests, plain in-process) region laid
// out per the cnc package's file layout:
//
//	md, err := cnc.NewMetaData(region)
//	if err != nil {
//		log.Fatal(err)
//	}
//	layout, err := cnc.ComputeLayout(md)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	toDriver, err := ringbuffer.New(cnc.ToDriverBuffer(region, layout), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	proxy := driverproxy.New(toDriver, logger)
//
//	correlationID, err := proxy.AddPublication("aeron:udp?endpoint=localhost:40123", 10)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Receiving Driver Responses
//
// The to-clients section is a broadcast buffer: many clients may poll
// it, and a slow client only risks missing messages, never blocking the
// driver.
//
//	receiver, err := broadcast.NewReceiver(cnc.ToClientsBuffer(region, layout), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for {
//		available, err := receiver.ReceiveNext()
//		if err != nil {
//			log.Fatal(err)
//		}
//		if !available {
//			break
//		}
//		msgTypeID, _ := receiver.MsgTypeID()
//		if driverproxy.DriverResponse(msgTypeID) == driverproxy.ResponseOnPublicationReady {
//			// handle the ready notification
//		}
//	}
//
// # Package Layout
//
//   - ccerr: the shared error taxonomy every other package wraps its
//     failures in.
//   - atomicbuffer: bounds-checked, ordering-explicit access to a raw
//     shared byte region. Every other package sits on top of this one.
//   - ringbuffer: the bounded many-to-one command ring.
//   - broadcast: the one-to-many response broadcast.
//   - cnc: the command-and-control file's layout and region slicing.
//   - driverproxy: turns API calls into command records on the ring.
//
// # Concurrency
//
// Every exported type in this module assumes its backing region may be
// observed, concurrently, by other processes sharing the same mapping —
// not just other goroutines in the same process. atomicbuffer's ordered
// accessors exist specifically for that: a plain Go data race detector
// cannot see across process boundaries, so the ordering discipline here
// is load-bearing even when every observer happens to live in this
// process during a test.
//
// # Thread Safety
//
// ManyToOneRingBuffer.Write and DriverProxy's command methods may be
// called concurrently from any number of goroutines. ManyToOneRingBuffer.Read
// must only ever be called by one goroutine at a time — the ring is
// single-consumer by construction, not by convention. broadcast.Receiver
// and broadcast.CopyReceiver are not safe for concurrent use by multiple
// goroutines; give each consuming goroutine its own receiver.
package concord
