// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package spidev

import (
	"fmt"
	"unsafe"

	"golang.org/x/exp/io/spi/driver"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// spidev ioctl request numbers, from linux/spi/spidev.h.
const (
	spiIOCWrMode        = 0x40016b01 // SPI_IOC_WR_MODE
	spiIOCWrLSBFirst    = 0x40016b02 // SPI_IOC_WR_LSB_FIRST
	spiIOCWrBitsPerWord = 0x40016b03 // SPI_IOC_WR_BITS_PER_WORD
	spiIOCWrMaxSpeedHz  = 0x40046b04 // SPI_IOC_WR_MAX_SPEED_HZ
	spiIOCMessage1      = 0x40206b00 // SPI_IOC_MESSAGE(1)
)

// spiTransfer mirrors struct spi_ioc_transfer.
type spiTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNBits     uint8
	rxNBits     uint8
	pad         uint16
}

// Devfs opens SPI connections through the /dev/spidevB.C device
// files exposed by the kernel spidev driver.
type Devfs struct{}

// Open opens a connection to the device on the given bus and chip
// select line.
func (Devfs) Open(bus, chip int) (driver.Conn, error) {
	name := fmt.Sprintf("/dev/spidev%d.%d", bus, chip)
	fd, err := unix.Open(name, unix.O_RDWR, 0)
	if err != nil {
		return nil, xerrors.Errorf("spidev: could not open %s: %w", name, err)
	}
	return &conn{fd: fd, name: name}, nil
}

type conn struct {
	fd    int
	name  string
	delay uint16 // usecs inserted after each transfer
}

func (c *conn) Configure(k, v int) error {
	switch k {
	case driver.Mode:
		return c.ioctlU8(spiIOCWrMode, uint8(v))
	case driver.Bits:
		return c.ioctlU8(spiIOCWrBitsPerWord, uint8(v))
	case driver.MaxSpeed:
		return c.ioctlU32(spiIOCWrMaxSpeedHz, uint32(v))
	case driver.Order:
		var lsb uint8
		if v == 0 {
			lsb = 1
		}
		return c.ioctlU8(spiIOCWrLSBFirst, lsb)
	case driver.Delay:
		c.delay = uint16(v)
		return nil
	}
	return xerrors.Errorf("spidev: unknown configuration key %d", k)
}

func (c *conn) Tx(tx, rx []byte) error {
	if len(tx) != len(rx) {
		return xerrors.Errorf("spidev: tx/rx length mismatch (%d != %d)", len(tx), len(rx))
	}
	if len(tx) == 0 {
		return nil
	}

	tr := spiTransfer{
		txBuf:      uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:      uint64(uintptr(unsafe.Pointer(&rx[0]))),
		len:        uint32(len(tx)),
		delayUsecs: c.delay,
	}
	err := c.ioctl(spiIOCMessage1, unsafe.Pointer(&tr))
	if err != nil {
		return xerrors.Errorf("spidev: could not transfer %d bytes on %s: %w", len(tx), c.name, err)
	}
	return nil
}

func (c *conn) Close() error {
	return unix.Close(c.fd)
}

func (c *conn) ioctlU8(req uint, v uint8) error {
	return c.ioctl(req, unsafe.Pointer(&v))
}

func (c *conn) ioctlU32(req uint, v uint32) error {
	return c.ioctl(req, unsafe.Pointer(&v))
}

func (c *conn) ioctl(req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		uintptr(c.fd),
		uintptr(req),
		uintptr(arg),
	)
	if errno != 0 {
		return errno
	}
	return nil
}

var _ driver.Conn = (*conn)(nil)
