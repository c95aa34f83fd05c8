// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spidev

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/go-plc/qca7k/qcaspi"
	"golang.org/x/exp/io/spi/driver"
)

var _ qcaspi.Transport = (*Transport)(nil)

// fakeConn records configuration and transfers. Each transfer clocks
// out one byte of rx for every tx byte.
type fakeConn struct {
	cfg    []string
	tx     []byte
	rx     []byte
	closed bool
	err    error
}

func (c *fakeConn) Configure(k, v int) error {
	if c.err != nil {
		return c.err
	}
	c.cfg = append(c.cfg, fmt.Sprintf("%d=%d", k, v))
	return nil
}

func (c *fakeConn) Tx(tx, rx []byte) error {
	if c.err != nil {
		return c.err
	}
	c.tx = append(c.tx, tx...)
	for i := range rx {
		if len(c.rx) == 0 {
			rx[i] = 0
			continue
		}
		rx[i] = c.rx[0]
		c.rx = c.rx[1:]
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestNewConfigures(t *testing.T) {
	conn := new(fakeConn)
	_, err := New(conn, WithMode(0), WithSpeed(12000000))
	if err != nil {
		t.Fatalf("could not create transport: %+v", err)
	}

	want := []string{
		fmt.Sprintf("%d=0", driver.Mode),
		fmt.Sprintf("%d=8", driver.Bits),
		fmt.Sprintf("%d=12000000", driver.MaxSpeed),
	}
	if got := conn.cfg; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid configuration:\ngot= %v\nwant=%v", got, want)
	}
}

func TestNewConfigureError(t *testing.T) {
	conn := &fakeConn{err: fmt.Errorf("spi: no such device")}
	_, err := New(conn)
	if err == nil {
		t.Fatalf("expected a configuration error")
	}
	want := fmt.Sprintf(
		"spidev: could not configure bus (k=%d, v=%d): spi: no such device",
		driver.Mode, defaultMode,
	)
	if got := err.Error(); got != want {
		t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
	}
}

func TestTransportBytes(t *testing.T) {
	conn := new(fakeConn)
	tr, err := New(conn)
	if err != nil {
		t.Fatalf("could not create transport: %+v", err)
	}

	if err := tr.Begin(); err != nil {
		t.Fatalf("could not begin transaction: %+v", err)
	}

	for _, v := range []byte{0xaa, 0x55, 0x01} {
		if err := tr.WriteByte(v); err != nil {
			t.Fatalf("could not write byte: %+v", err)
		}
	}
	if got, want := conn.tx, []byte{0xaa, 0x55, 0x01}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid bytes clocked out:\ngot= %x\nwant=%x", got, want)
	}

	conn.tx = conn.tx[:0]
	conn.rx = []byte{0xde, 0xad}
	for _, want := range []byte{0xde, 0xad} {
		v, err := tr.ReadByte()
		if err != nil {
			t.Fatalf("could not read byte: %+v", err)
		}
		if v != want {
			t.Fatalf("invalid byte clocked in: got=0x%02x, want=0x%02x", v, want)
		}
	}
	// Reads clock out filler bytes.
	if got, want := conn.tx, []byte{0x00, 0x00}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid filler bytes:\ngot= %x\nwant=%x", got, want)
	}

	if err := tr.End(); err != nil {
		t.Fatalf("could not end transaction: %+v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("could not close transport: %+v", err)
	}
	if !conn.closed {
		t.Fatalf("connection not closed")
	}
}
