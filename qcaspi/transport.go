// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qcaspi

// Transport is the byte-level SPI access a Device is built on.
//
// Begin and End bracket one bus transaction. The bus is a shared
// resource: every multi-byte operation of the driver runs between a
// Begin and an End so that no two logical operations interleave
// their bytes on the wire. End is called on every exit path.
type Transport interface {
	// Begin acquires the bus for one transaction.
	Begin() error
	// End releases the bus.
	End() error
	// WriteByte shifts one byte out to the chip.
	WriteByte(v byte) error
	// ReadByte shifts one byte in from the chip.
	ReadByte() (byte, error)
}
