// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qcaspi

import (
	"golang.org/x/xerrors"
)

// command packs a command word: bit 15 selects read (1) or write (0),
// bit 14 selects internal (1) or external (0) access, bits 13..0 hold
// the register address. External commands force the address to zero.
func command(read, internal bool, reg uint16) uint16 {
	var cmd uint16
	if internal {
		cmd = reg & 0x3fff
		cmd |= 1 << 14
	}
	if read {
		cmd |= 1 << 15
	}
	return cmd
}

func (dev *Device) writeCommand(read, internal bool, reg uint16) error {
	return dev.writeRegister(command(read, internal, reg))
}

// writeRegister serializes v on the wire in the register protocol
// byte order: big endian, high byte first.
func (dev *Device) writeRegister(v uint16) error {
	err := dev.t.WriteByte(byte(v >> 8))
	if err != nil {
		return err
	}
	return dev.t.WriteByte(byte(v))
}

// readRegister reassembles two wire bytes into a host-order value.
// The first byte received is the high-order byte.
func (dev *Device) readRegister() (uint16, error) {
	hi, err := dev.t.ReadByte()
	if err != nil {
		return 0, err
	}
	lo, err := dev.t.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// regRead reads one internal register inside its own bus transaction.
func (dev *Device) regRead(reg uint16) (uint16, error) {
	err := dev.t.Begin()
	if err != nil {
		return 0, xerrors.Errorf("qcaspi: could not begin bus transaction: %w", err)
	}

	var v uint16
	err = dev.writeCommand(true, true, reg)
	if err == nil {
		v, err = dev.readRegister()
	}
	if cerr := dev.t.End(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, xerrors.Errorf("qcaspi: could not read register 0x%04x: %w", reg, err)
	}
	return v, nil
}

// regWrite writes one internal register inside its own bus transaction.
func (dev *Device) regWrite(reg, v uint16) error {
	err := dev.t.Begin()
	if err != nil {
		return xerrors.Errorf("qcaspi: could not begin bus transaction: %w", err)
	}

	err = dev.writeCommand(false, true, reg)
	if err == nil {
		err = dev.writeRegister(v)
	}
	if cerr := dev.t.End(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return xerrors.Errorf("qcaspi: could not write register 0x%04x: %w", reg, err)
	}
	return nil
}
