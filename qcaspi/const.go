// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qcaspi

// Register map from the in-tech smart charging (I2SE) documentation
// for the PLC stamp mini 2. Possibly a subset of what the chip offers.
const (
	regBfrSize      uint16 = 0x0100 // size of the next external transfer (W)
	regWrBufSpcAva  uint16 = 0x0200 // write buffer space available (R)
	regRdBufByteAva uint16 = 0x0300 // read buffer bytes available (R)
	regSPIConfig    uint16 = 0x0400 // settings register, mostly undocumented (R/W)
	regIntrCause    uint16 = 0x0C00 // pending interrupt reasons, write back to ack (R/W)
	regIntrEnable   uint16 = 0x0D00 // interrupt mask (R/W)
	regSignature    uint16 = 0x1A00 // fixed signature value (R)
)

// cfgSlaveReset is the only known bit of the settings register.
const cfgSlaveReset uint16 = 1 << 6

// Interrupt reasons.
const (
	IntCPUOn    uint16 = 1 << 6 // device performed a startup
	IntWrBufErr uint16 = 1 << 2 // write buffer error
	IntRdBufErr uint16 = 1 << 1 // read buffer error
	IntPktAvail uint16 = 1 << 0 // data available to read

	// IntAll is the full set of known interrupt reasons.
	IntAll = IntCPUOn | IntWrBufErr | IntRdBufErr | IntPktAvail
)

// Signature is the value the signature register holds on a healthy,
// correctly wired chip.
const Signature uint16 = 0xAA55

const (
	// FrameMax is the largest payload a frame may carry.
	FrameMax = 1522
	// FrameMin is the smallest payload the chip accepts on transmit;
	// shorter payloads are zero-padded up to it.
	FrameMin = 60
)

// Frame stream markers.
const (
	sof      byte = 0xAA // start of frame, repeated 4 times
	reserved byte = 0x00 // reserved bytes after the length field
	eof      byte = 0x55 // end of frame, repeated 2 times
)

// frameOverhead is the wire cost of a frame on top of its payload:
// 4 sync bytes, 2 length bytes, 2 reserved bytes and 2 end markers.
const frameOverhead = 4 + 2 + 2 + 2
