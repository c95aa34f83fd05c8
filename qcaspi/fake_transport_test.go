// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qcaspi

import (
	"fmt"
)

// fakeChip emulates the register file and buffers of a chip behind
// the byte transport. Register accesses are recorded chronologically
// in log so tests can assert exact sequences; protocol misuse by the
// driver (reads without a command, nested transactions, reads past
// the advertised availability) surfaces as a transport error.
type fakeChip struct {
	regs map[uint16]uint16

	sigs  []uint16 // queued signature reads, consumed first
	avail []uint16 // queued read-buffer availability reads
	wrbuf []uint16 // queued write-buffer space reads

	rx []byte // bytes the chip offers on the external read stream
	tx []byte // bytes captured from the external write stream

	log   []string // chronological internal register accesses
	ops   int      // total byte operations on the transport
	trans int      // total transactions

	open bool
	cmd  uint16
	ncmd int
	val  uint16
	nval int
	out  [2]byte
	nout int
}

func newFakeChip() *fakeChip {
	return &fakeChip{
		regs: make(map[uint16]uint16),
	}
}

func (chip *fakeChip) Begin() error {
	if chip.open {
		return fmt.Errorf("fake: nested transaction")
	}
	chip.open = true
	chip.trans++
	chip.cmd = 0
	chip.ncmd = 0
	chip.val = 0
	chip.nval = 0
	chip.nout = 0
	return nil
}

func (chip *fakeChip) End() error {
	if !chip.open {
		return fmt.Errorf("fake: end without begin")
	}
	chip.open = false
	return nil
}

func (chip *fakeChip) WriteByte(v byte) error {
	chip.ops++
	if !chip.open {
		return fmt.Errorf("fake: write outside transaction")
	}

	if chip.ncmd < 2 {
		chip.cmd = chip.cmd<<8 | uint16(v)
		chip.ncmd++
		if chip.ncmd == 2 && chip.cmdRead() && chip.cmdInternal() {
			val := chip.readReg(chip.cmdReg())
			chip.out[0] = byte(val >> 8)
			chip.out[1] = byte(val)
			chip.nout = 0
		}
		return nil
	}

	switch {
	case chip.cmdRead():
		return fmt.Errorf("fake: write byte after read command 0x%04x", chip.cmd)
	case chip.cmdInternal():
		chip.val = chip.val<<8 | uint16(v)
		chip.nval++
		if chip.nval == 2 {
			chip.writeReg(chip.cmdReg(), chip.val)
			chip.val = 0
			chip.nval = 0
		}
	default:
		chip.tx = append(chip.tx, v)
	}
	return nil
}

func (chip *fakeChip) ReadByte() (byte, error) {
	chip.ops++
	if !chip.open {
		return 0, fmt.Errorf("fake: read outside transaction")
	}
	if chip.ncmd < 2 {
		return 0, fmt.Errorf("fake: read before command word")
	}
	if !chip.cmdRead() {
		return 0, fmt.Errorf("fake: read byte after write command 0x%04x", chip.cmd)
	}

	if chip.cmdInternal() {
		if chip.nout >= 2 {
			return 0, fmt.Errorf("fake: register over-read")
		}
		v := chip.out[chip.nout]
		chip.nout++
		return v, nil
	}

	if len(chip.rx) == 0 {
		return 0, fmt.Errorf("fake: read past available bytes")
	}
	v := chip.rx[0]
	chip.rx = chip.rx[1:]
	return v, nil
}

func (chip *fakeChip) cmdRead() bool     { return chip.cmd&(1<<15) != 0 }
func (chip *fakeChip) cmdInternal() bool { return chip.cmd&(1<<14) != 0 }
func (chip *fakeChip) cmdReg() uint16    { return chip.cmd & 0x3fff }

func (chip *fakeChip) readReg(reg uint16) uint16 {
	var v uint16
	switch reg {
	case regSignature:
		if len(chip.sigs) > 0 {
			v = chip.sigs[0]
			chip.sigs = chip.sigs[1:]
		} else {
			v = chip.regs[reg]
		}
	case regRdBufByteAva:
		if len(chip.avail) > 0 {
			v = chip.avail[0]
			chip.avail = chip.avail[1:]
		} else {
			v = chip.regs[reg]
		}
	case regWrBufSpcAva:
		if len(chip.wrbuf) > 0 {
			v = chip.wrbuf[0]
			chip.wrbuf = chip.wrbuf[1:]
		} else {
			v = chip.regs[reg]
		}
	default:
		v = chip.regs[reg]
	}
	chip.log = append(chip.log, fmt.Sprintf("r 0x%04x -> 0x%04x", reg, v))
	return v
}

func (chip *fakeChip) writeReg(reg, v uint16) {
	chip.regs[reg] = v
	chip.log = append(chip.log, fmt.Sprintf("w 0x%04x <- 0x%04x", reg, v))
}

// wireFrame builds the exact on-wire byte sequence for a frame
// carrying p, independently of the Send path.
func wireFrame(p []byte) []byte {
	size := len(p)
	if size < FrameMin {
		size = FrameMin
	}
	frame := make([]byte, 0, frameOverhead+size)
	frame = append(frame, sof, sof, sof, sof)
	frame = append(frame, byte(size), byte(size>>8)) // little endian
	frame = append(frame, reserved, reserved)
	frame = append(frame, p...)
	for i := len(p); i < size; i++ {
		frame = append(frame, 0x00)
	}
	frame = append(frame, eof, eof)
	return frame
}
