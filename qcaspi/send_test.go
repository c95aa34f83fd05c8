// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qcaspi

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestSendOverflow(t *testing.T) {
	chip := newFakeChip()
	dev := New(chip)

	err := dev.Send(make([]byte, FrameMax+1))
	if !errors.Is(err, ErrFrameOverflow) {
		t.Fatalf("got=%+v, want=%+v", err, ErrFrameOverflow)
	}
	if got, want := chip.ops, 0; got != want {
		t.Fatalf("oversize frame reached the transport: ops=%d, want=%d", got, want)
	}
	if got, want := chip.trans, 0; got != want {
		t.Fatalf("oversize frame opened a transaction: trans=%d, want=%d", got, want)
	}
}

func TestSendInsufficientSpace(t *testing.T) {
	chip := newFakeChip()
	chip.wrbuf = []uint16{frameOverhead + FrameMin - 1}
	dev := New(chip)

	err := dev.Send([]byte{0x01})
	if !errors.Is(err, ErrWriteBufferInsufficient) {
		t.Fatalf("got=%+v, want=%+v", err, ErrWriteBufferInsufficient)
	}

	// Only the availability check may have touched the chip.
	want := []string{"r 0x0200 -> 0x0045"}
	if got := chip.log; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid register access log:\ngot= %v\nwant=%v", got, want)
	}
	if len(chip.tx) != 0 {
		t.Fatalf("frame bytes written despite insufficient space: %x", chip.tx)
	}
}

func TestSendPadding(t *testing.T) {
	chip := newFakeChip()
	chip.regs[regWrBufSpcAva] = 0x0c5b
	dev := New(chip)

	p := []byte{0xde, 0xad, 0xbe, 0xef}
	err := dev.Send(p)
	if err != nil {
		t.Fatalf("could not send frame: %+v", err)
	}

	if got, want := chip.tx, wireFrame(p); !bytes.Equal(got, want) {
		t.Fatalf("invalid frame bytes:\ngot= %x\nwant=%x", got, want)
	}

	// Payload section is exactly FrameMin bytes, trailing bytes zero.
	payload := chip.tx[8 : 8+FrameMin]
	if !bytes.Equal(payload[:len(p)], p) {
		t.Fatalf("invalid payload bytes: got=%x, want=%x", payload[:len(p)], p)
	}
	for i, v := range payload[len(p):] {
		if v != 0x00 {
			t.Fatalf("invalid padding byte %d: got=0x%02x, want=0x00", i, v)
		}
	}

	want := []string{
		"r 0x0200 -> 0x0c5b",
		"w 0x0100 <- 0x0046", // 10 bytes of framing + 60 bytes padded payload
	}
	if got := chip.log; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid register access log:\ngot= %v\nwant=%v", got, want)
	}
}

func TestSendLengthLittleEndian(t *testing.T) {
	chip := newFakeChip()
	chip.regs[regWrBufSpcAva] = 0xffff
	dev := New(chip)

	err := dev.Send(make([]byte, 0x0234))
	if err != nil {
		t.Fatalf("could not send frame: %+v", err)
	}

	// Length is little endian on the wire, unlike register values.
	if got, want := chip.tx[4:6], []byte{0x34, 0x02}; !bytes.Equal(got, want) {
		t.Fatalf("invalid length field: got=%x, want=%x", got, want)
	}
}
