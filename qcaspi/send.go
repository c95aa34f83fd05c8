// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qcaspi

import (
	"golang.org/x/xerrors"
)

// Send transmits one frame carrying p as payload.
//
// Payloads larger than FrameMax are rejected with ErrFrameOverflow
// before any transport activity. Payloads shorter than FrameMin are
// zero-padded on the wire. When the chip does not advertise enough
// write buffer space for the whole frame, Send returns
// ErrWriteBufferInsufficient without writing any frame byte; retry
// later.
func (dev *Device) Send(p []byte) error {
	if len(p) > FrameMax {
		return xerrors.Errorf("qcaspi: %w (size=%d, max=%d)", ErrFrameOverflow, len(p), FrameMax)
	}

	size := len(p)
	if size < FrameMin {
		size = FrameMin
	}
	needed := uint16(frameOverhead + size)

	avail, err := dev.regRead(regWrBufSpcAva)
	if err != nil {
		return xerrors.Errorf("qcaspi: could not read write buffer space: %w", err)
	}
	if avail < needed {
		return xerrors.Errorf("qcaspi: %w (avail=%d, need=%d)", ErrWriteBufferInsufficient, avail, needed)
	}

	// Inform the chip of the size of the external write operation.
	err = dev.regWrite(regBfrSize, needed)
	if err != nil {
		return xerrors.Errorf("qcaspi: could not announce transfer size: %w", err)
	}

	err = dev.t.Begin()
	if err != nil {
		return xerrors.Errorf("qcaspi: could not begin bus transaction: %w", err)
	}

	w := xmit{t: dev.t}
	w.putU16(command(false, false, 0))
	w.put(sof)
	w.put(sof)
	w.put(sof)
	w.put(sof)
	// The frame length field is little endian on the wire, unlike
	// register values.
	w.putU16LE(uint16(size))
	w.put(reserved)
	w.put(reserved)
	w.write(p)
	for i := len(p); i < size; i++ {
		w.put(0x00)
	}
	w.put(eof)
	w.put(eof)

	err = w.err
	if cerr := dev.t.End(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return xerrors.Errorf("qcaspi: could not stream frame: %w", err)
	}
	return nil
}

// xmit streams bytes to the transport, latching the first error.
type xmit struct {
	t   Transport
	err error
}

func (w *xmit) put(v byte) {
	if w.err != nil {
		return
	}
	w.err = w.t.WriteByte(v)
}

func (w *xmit) write(p []byte) {
	for _, v := range p {
		if w.err != nil {
			return
		}
		w.err = w.t.WriteByte(v)
	}
}

// putU16 writes v in the register byte order (big endian).
func (w *xmit) putU16(v uint16) {
	w.put(byte(v >> 8))
	w.put(byte(v))
}

// putU16LE writes v in the frame length byte order (little endian).
func (w *xmit) putU16LE(v uint16) {
	w.put(byte(v))
	w.put(byte(v >> 8))
}
