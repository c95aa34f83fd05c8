// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spidev connects the protocol driver to an SPI bus exposed
// by the Linux spidev device files.
//
// Transfers are issued one byte per SPI transaction, with the chip
// select released in between. QCA7000-family chips accept this as
// long as they are strapped for the legacy multi-CS burst mode; the
// newer single-CS burst mode needs the chip select held over a whole
// frame, which spidev cannot guarantee from user space.
package spidev // import "github.com/go-plc/qca7k/spidev"

import (
	"golang.org/x/exp/io/spi/driver"
	"golang.org/x/xerrors"
)

// Default bus parameters, matching the chip datasheet: SPI mode 3,
// 8 bits per word, MSB first, at most 16 MHz. 8 MHz leaves margin
// on long wires.
const (
	defaultMode  = 3
	defaultBits  = 8
	defaultSpeed = 8000000
)

// Transport adapts an SPI connection to the byte transport the
// protocol driver expects.
type Transport struct {
	conn driver.Conn
}

// Option configures a Transport during Open or New.
type Option func(*config)

type config struct {
	mode  int
	bits  int
	speed int
}

// WithMode selects the SPI clock mode (0-3).
func WithMode(mode int) Option {
	return func(cfg *config) {
		cfg.mode = mode
	}
}

// WithSpeed sets the maximum bus clock, in Hz.
func WithSpeed(hz int) Option {
	return func(cfg *config) {
		cfg.speed = hz
	}
}

// Open opens the spidev device file for the given bus and chip
// select line (/dev/spidevB.C) and configures it.
func Open(bus, chip int, opts ...Option) (*Transport, error) {
	conn, err := Devfs{}.Open(bus, chip)
	if err != nil {
		return nil, xerrors.Errorf("spidev: could not open spidev%d.%d: %w", bus, chip, err)
	}
	t, err := New(conn, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return t, nil
}

// New configures conn and wraps it into a Transport.
func New(conn driver.Conn, opts ...Option) (*Transport, error) {
	cfg := config{
		mode:  defaultMode,
		bits:  defaultBits,
		speed: defaultSpeed,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, kv := range []struct {
		k, v int
	}{
		{driver.Mode, cfg.mode},
		{driver.Bits, cfg.bits},
		{driver.MaxSpeed, cfg.speed},
	} {
		err := conn.Configure(kv.k, kv.v)
		if err != nil {
			return nil, xerrors.Errorf("spidev: could not configure bus (k=%d, v=%d): %w", kv.k, kv.v, err)
		}
	}
	return &Transport{conn: conn}, nil
}

// Begin starts a protocol transaction. The chip select is managed by
// the kernel per transfer, so there is nothing to assert here; the
// method exists to satisfy the transport contract.
func (t *Transport) Begin() error { return nil }

// End terminates a protocol transaction.
func (t *Transport) End() error { return nil }

// WriteByte clocks v out on the bus.
func (t *Transport) WriteByte(v byte) error {
	var rx [1]byte
	return t.conn.Tx([]byte{v}, rx[:])
}

// ReadByte clocks one byte in from the bus.
func (t *Transport) ReadByte() (byte, error) {
	var rx [1]byte
	err := t.conn.Tx([]byte{0x00}, rx[:])
	if err != nil {
		return 0, err
	}
	return rx[0], nil
}

// Close releases the underlying SPI connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}
