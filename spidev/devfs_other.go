// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package spidev

import (
	"golang.org/x/exp/io/spi/driver"
	"golang.org/x/xerrors"
)

// Devfs opens SPI connections through the /dev/spidevB.C device
// files exposed by the kernel spidev driver. It is only functional
// on Linux.
type Devfs struct{}

// Open opens a connection to the device on the given bus and chip
// select line.
func (Devfs) Open(bus, chip int) (driver.Conn, error) {
	return nil, xerrors.New("spidev: not supported on this platform")
}
