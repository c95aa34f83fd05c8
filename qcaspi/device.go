// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qcaspi implements the SPI slave protocol of QCA7000-family
// powerline bridge chips: the register access protocol, the framed
// byte stream used to exchange Ethernet payloads, and the chip
// startup, reset and interrupt sequencing.
package qcaspi // import "github.com/go-plc/qca7k/qcaspi"

import (
	"log"
	"os"

	"golang.org/x/xerrors"
)

// Device drives one QCA7000-class chip over a byte Transport.
//
// A Device is not safe for concurrent use. The receive state machine
// carries state across Recv calls and has a single logical owner;
// see Recv.
type Device struct {
	t   Transport
	msg *log.Logger

	prs  parser
	busy bool // reentrancy guard for Recv
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger the Device reports with.
func WithLogger(msg *log.Logger) Option {
	return func(dev *Device) {
		dev.msg = msg
	}
}

// New returns a Device driving the chip behind t.
func New(t Transport, opts ...Option) *Device {
	dev := &Device{
		t:   t,
		msg: log.New(os.Stdout, "qca: ", 0),
	}
	for _, opt := range opts {
		opt(dev)
	}
	return dev
}

// Signature reads the chip signature register, in host byte order.
func (dev *Device) Signature() (uint16, error) {
	return dev.regRead(regSignature)
}

// Startup runs the recommended startup sequence: it verifies the chip
// signature and then enables the full interrupt set. On a signature
// mismatch it returns ErrBadSignature and leaves interrupts untouched.
//
// Run it once the SPI link is up, and again after servicing an
// IntCPUOn interrupt.
func (dev *Device) Startup() error {
	// The first signature read after power-up is unreliable:
	// request one and discard it.
	_, _ = dev.Signature()

	sig, err := dev.Signature()
	if err != nil {
		return xerrors.Errorf("qcaspi: could not read signature: %w", err)
	}
	if sig != Signature {
		return xerrors.Errorf("qcaspi: %w (got=0x%04x, want=0x%04x)", ErrBadSignature, sig, Signature)
	}

	err = dev.InterruptsEnableAll()
	if err != nil {
		return xerrors.Errorf("qcaspi: could not enable interrupts: %w", err)
	}
	dev.msg.Printf("chip signature 0x%04x, interrupts enabled", sig)
	return nil
}

// Reset requests a chip soft reset by setting the reset bit of the
// settings register in a read-modify-write cycle. No readback is
// performed: the chip signals completion with an IntCPUOn interrupt.
func (dev *Device) Reset() error {
	cfg, err := dev.regRead(regSPIConfig)
	if err != nil {
		return xerrors.Errorf("qcaspi: could not read settings register: %w", err)
	}
	err = dev.regWrite(regSPIConfig, cfg|cfgSlaveReset)
	if err != nil {
		return xerrors.Errorf("qcaspi: could not reset chip: %w", err)
	}
	dev.msg.Printf("soft reset requested")
	return nil
}

// InterruptsGet returns the currently enabled interrupt mask.
func (dev *Device) InterruptsGet() (uint16, error) {
	return dev.regRead(regIntrEnable)
}

// InterruptsSet overwrites the interrupt mask.
func (dev *Device) InterruptsSet(mask uint16) error {
	return dev.regWrite(regIntrEnable, mask)
}

// InterruptsEnable enables the interrupts in mask on top of the ones
// already enabled.
func (dev *Device) InterruptsEnable(mask uint16) error {
	cur, err := dev.InterruptsGet()
	if err != nil {
		return err
	}
	return dev.InterruptsSet(cur | mask)
}

// InterruptsDisable disables the interrupts in mask, leaving the
// others as they are.
func (dev *Device) InterruptsDisable(mask uint16) error {
	cur, err := dev.InterruptsGet()
	if err != nil {
		return err
	}
	return dev.InterruptsSet(cur &^ mask)
}

// InterruptsEnableAll enables all known interrupt reasons.
func (dev *Device) InterruptsEnableAll() error {
	return dev.InterruptsSet(IntAll)
}

// InterruptsDisableAll disables all interrupts.
func (dev *Device) InterruptsDisableAll() error {
	return dev.InterruptsSet(0)
}

// InterruptReasons runs the full interrupt handling sequence: it
// disables all interrupts, reads the cause register and writes the
// same value back to acknowledge it, then returns the raw mask.
//
// The ordering (disable, read, ack-write) is a hard contract of the
// chip: reordering risks losing a reason bit raised in between.
// The caller re-enables interrupts after servicing the reasons.
func (dev *Device) InterruptReasons() (uint16, error) {
	err := dev.InterruptsDisableAll()
	if err != nil {
		return 0, xerrors.Errorf("qcaspi: could not disable interrupts: %w", err)
	}

	reasons, err := dev.regRead(regIntrCause)
	if err != nil {
		return 0, xerrors.Errorf("qcaspi: could not read interrupt cause: %w", err)
	}

	// Confirm by rewriting the same value.
	err = dev.regWrite(regIntrCause, reasons)
	if err != nil {
		return 0, xerrors.Errorf("qcaspi: could not acknowledge interrupt cause: %w", err)
	}

	return reasons, nil
}
