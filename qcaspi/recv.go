// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qcaspi

import (
	"golang.org/x/xerrors"
)

// Stage identifies where the receive state machine stands.
type Stage uint8

const (
	// StageSync scans for the 4-byte start-of-frame marker.
	StageSync Stage = iota
	// StageLength collects the 2-byte frame length field.
	StageLength
	// StageReserved collects the 2 reserved bytes after the length.
	StageReserved
	// StagePayload copies the payload into the destination buffer.
	StagePayload
	// StageEOF collects the 2-byte end-of-frame marker.
	StageEOF
	// StageDone marks a completely assembled frame.
	StageDone
	// StageFault marks a state machine fault; the state has been
	// reset and the next Recv starts clean.
	StageFault
)

func (st Stage) String() string {
	switch st {
	case StageSync:
		return "await-sync"
	case StageLength:
		return "await-length"
	case StageReserved:
		return "await-reserved"
	case StagePayload:
		return "await-payload"
	case StageEOF:
		return "await-eof"
	case StageDone:
		return "done"
	case StageFault:
		return "fault"
	}
	return "invalid"
}

// parser is the receive state machine. It persists across Recv calls
// so a frame may be assembled from however many bytes the chip makes
// available at a time.
type parser struct {
	stage  Stage
	need   uint16 // bytes left in the current stage
	expect byte   // byte value StageSync/StageReserved/StageEOF require
	length uint16 // frame length, assembled during StageLength
	dst    []byte // destination buffer; its identity anchors the state
	cur    int    // write cursor into dst
}

// reset puts the state machine back into the "waiting for start of
// frame" state, assembling into dst.
func (p *parser) reset(dst []byte) {
	p.stage = StageSync
	p.need = 4
	p.expect = sof
	p.length = 0
	p.dst = dst
	p.cur = 0
}

// action tells the receive loop what to do after feeding one byte.
type action uint8

const (
	// actNext consumes the next input byte.
	actNext action = iota
	// actRetry re-presents the same byte to the freshly reset
	// machine before consuming the next input byte.
	actRetry
	// actDone reports one completely assembled frame.
	actDone
	// actFault reports an impossible stage; the state was reset.
	actFault
)

// feed advances the state machine by one byte. It performs no I/O:
// the caller interprets the returned action.
//
// A mismatch in StageSync keeps scanning, every byte being a
// candidate frame start. A mismatch in StageReserved or StageEOF is
// different: the offending byte is not discarded but re-presented to
// the reset machine as a possible new sync byte. This asymmetry is a
// deliberate part of the protocol and must be preserved.
func (p *parser) feed(v byte) action {
	switch p.stage {
	case StageSync, StageReserved, StageEOF:
		if v != p.expect {
			st := p.stage
			p.reset(p.dst)
			if st != StageSync {
				return actRetry
			}
			return actNext
		}

	case StageLength:
		// The length field arrives little endian: the first byte
		// is the low half.
		if p.need == 2 {
			p.length = uint16(v)
		} else {
			p.length |= uint16(v) << 8
		}

	case StagePayload:
		p.dst[p.cur] = v
		p.cur++

	default:
		// Cannot happen; clean up if it ever does.
		p.reset(p.dst)
		p.stage = StageFault
		return actFault
	}

	p.need--
	if p.need > 0 {
		return actNext
	}

	switch p.stage {
	case StageSync:
		p.stage = StageLength
		p.need = 2
	case StageLength:
		if p.length > FrameMax {
			// Not a length a frame can have: whatever matched
			// the sync marker was not a frame start.
			p.reset(p.dst)
			return actNext
		}
		p.stage = StageReserved
		p.need = 2
		p.expect = reserved
	case StageReserved:
		p.cur = 0
		if p.length == 0 {
			p.stage = StageEOF
			p.need = 2
			p.expect = eof
			break
		}
		p.stage = StagePayload
		p.need = p.length
	case StagePayload:
		p.stage = StageEOF
		p.need = 2
		p.expect = eof
	case StageEOF:
		p.stage = StageDone
		return actDone
	}
	return actNext
}

// RecvStage reports where the receive state machine currently stands.
// Useful to qualify an in-progress Recv.
func (dev *Device) RecvStage() Stage { return dev.prs.stage }

// Recv consumes however many bytes the chip reports as available,
// assembling one frame into dst. dst must have room for FrameMax
// bytes.
//
// A frame rarely arrives in one call: Recv returns done=false with a
// nil error when the frame is still in progress, and the caller
// invokes Recv again with the same dst once more data is available
// (typically on the next IntPktAvail interrupt). Passing a different
// dst mid-frame silently discards the partial frame and starts over.
// When a frame completes, done is true and n is its payload length;
// bytes beyond the frame stay in the chip for the next call.
//
// Recv must not be invoked concurrently with itself, from another
// goroutine or reentrantly from a nested interrupt handler: the
// state machine is mutated without synchronization. A reentrant call
// fails loudly with ErrReentrantRecv instead of corrupting state.
func (dev *Device) Recv(dst []byte) (n int, done bool, err error) {
	if len(dst) == 0 {
		return 0, false, ErrNilBuffer
	}
	if dev.busy {
		return 0, false, ErrReentrantRecv
	}
	dev.busy = true
	defer func() { dev.busy = false }()

	p := &dev.prs
	if p.dst == nil || &p.dst[0] != &dst[0] || p.stage == StageDone || p.stage == StageFault {
		p.reset(dst)
	}

	avail, err := dev.regRead(regRdBufByteAva)
	if err != nil {
		return 0, false, xerrors.Errorf("qcaspi: could not read read buffer availability: %w", err)
	}
	if avail == 0 {
		return 0, false, ErrEmptyReadBuffer
	}

	err = dev.t.Begin()
	if err != nil {
		return 0, false, xerrors.Errorf("qcaspi: could not begin bus transaction: %w", err)
	}

	err = dev.writeCommand(true, false, 0)
	if err == nil {
		done, err = dev.scan(p, int(avail))
	}
	if cerr := dev.t.End(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, false, xerrors.Errorf("qcaspi: could not scan read buffer: %w", err)
	}

	if done {
		return int(p.length), true, nil
	}
	return 0, false, nil
}

// scan feeds up to avail bytes from the open external read stream
// into the state machine.
func (dev *Device) scan(p *parser, avail int) (bool, error) {
	var (
		v     byte
		retry bool
	)
	for i := 0; i < avail; i++ {
		if !retry {
			var err error
			v, err = dev.t.ReadByte()
			if err != nil {
				return false, err
			}
		}
		retry = false

		switch p.feed(v) {
		case actNext:
		case actRetry:
			// Re-evaluate the same byte; it does not count
			// against the bytes available.
			retry = true
			i--
		case actDone:
			// Leave the remaining bytes for the next call.
			return true, nil
		case actFault:
			return false, ErrInternal
		}
	}
	return false, nil
}
