// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qcaspi

import "errors"

var (
	// ErrBadSignature is returned by Startup when the chip does not
	// identify itself with the expected signature value.
	ErrBadSignature = errors.New("qcaspi: bad chip signature")

	// ErrFrameOverflow is returned by Send for payloads larger than
	// FrameMax. No transport activity takes place.
	ErrFrameOverflow = errors.New("qcaspi: frame too large")

	// ErrWriteBufferInsufficient is returned by Send when the chip
	// does not advertise enough write buffer space for the frame.
	// The condition is transient: retry later.
	ErrWriteBufferInsufficient = errors.New("qcaspi: not enough write buffer space")

	// ErrNilBuffer is returned by Recv when no destination buffer
	// is supplied. This is a caller bug.
	ErrNilBuffer = errors.New("qcaspi: nil receive buffer")

	// ErrEmptyReadBuffer is returned by Recv when the chip has no
	// bytes to read. The condition is transient: poll again later.
	ErrEmptyReadBuffer = errors.New("qcaspi: nothing in the read buffer")

	// ErrReentrantRecv is returned by Recv when it is entered while
	// another Recv is still running. The receive state machine has a
	// single logical owner; concurrent calls are a caller bug.
	ErrReentrantRecv = errors.New("qcaspi: reentrant receive")

	// ErrInternal reports that the receive state machine reached a
	// stage it cannot have. The state is reset so the next call
	// starts clean; observing this error is a bug in this package.
	ErrInternal = errors.New("qcaspi: internal state machine error")
)
