// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package daq exposes a QCA7000-class powerline bridge as a TDAQ
// process: Ethernet payloads received over the powerline are
// published on an output end-point, and payloads sent to the process
// are framed and handed to the chip.
package daq // import "github.com/go-plc/qca7k/daq"

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-plc/qca7k/qcaspi"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// device is the view of the protocol driver the service needs.
type device interface {
	Startup() error
	Reset() error
	Send(p []byte) error
	Recv(dst []byte) (int, bool, error)
	InterruptReasons() (uint16, error)
	InterruptsEnableAll() error
}

var _ device = (*qcaspi.Device)(nil)

// Server services the chip interrupts and bridges frames between the
// chip and the TDAQ network.
type Server struct {
	dev device
	msg *log.Logger

	freq     time.Duration // interrupt polling interval
	beat     string        // heartbeat address, optional
	beatFreq time.Duration // heartbeat reporting interval

	out chan []byte // frames received from the powerline
	buf []byte      // receive assembly buffer

	// Traffic counters. The heartbeat goroutine reads them while
	// the poll loop and the /xmit handler update them.
	nrecv atomic.Int64 // frames received
	nsent atomic.Int64 // frames transmitted
	ndrop atomic.Int64 // received frames dropped on backpressure
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger the Server reports with.
func WithLogger(msg *log.Logger) Option {
	return func(srv *Server) {
		srv.msg = msg
	}
}

// WithPollInterval sets the chip interrupt polling interval.
func WithPollInterval(freq time.Duration) Option {
	return func(srv *Server) {
		srv.freq = freq
	}
}

// WithBeatAddr makes the Server report a periodic heartbeat to a
// monitoring process listening on addr.
func WithBeatAddr(addr string) Option {
	return func(srv *Server) {
		srv.beat = addr
	}
}

// New returns a Server bridging the chip behind dev.
func New(dev *qcaspi.Device, opts ...Option) *Server {
	return newServer(dev, opts...)
}

func newServer(dev device, opts ...Option) *Server {
	srv := &Server{
		dev:      dev,
		msg:      log.New(os.Stdout, "qca-daq: ", 0),
		freq:     10 * time.Millisecond,
		beatFreq: 5 * time.Second,
		out:      make(chan []byte, 256),
		buf:      make([]byte, qcaspi.FrameMax),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := srv.dev.Startup()
	if err != nil {
		return xerrors.Errorf("could not start up chip: %w", err)
	}
	srv.nrecv.Store(0)
	srv.nsent.Store(0)
	srv.ndrop.Store(0)
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := srv.dev.Reset()
	if err != nil {
		return xerrors.Errorf("could not reset chip: %w", err)
	}
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command... -> recv=%d sent=%d drop=%d",
		srv.nrecv.Load(), srv.nsent.Load(), srv.ndrop.Load(),
	)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

// OnXmit frames the command payload and hands it to the chip.
func (srv *Server) OnXmit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	return srv.xmit(req.Body)
}

func (srv *Server) xmit(p []byte) error {
	err := srv.dev.Send(p)
	if err != nil {
		return xerrors.Errorf("could not transmit frame (size=%d): %w", len(p), err)
	}
	srv.nsent.Add(1)
	return nil
}

// Eth publishes frames received from the powerline.
func (srv *Server) Eth(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case p := <-srv.out:
		dst.Body = p
	}
	return nil
}

// Run services the chip until the context is cancelled.
func (srv *Server) Run(ctx tdaq.Context) error {
	grp, gctx := errgroup.WithContext(ctx.Ctx)
	grp.Go(func() error {
		return srv.loop(gctx)
	})
	if srv.beat != "" {
		grp.Go(func() error {
			return srv.heartbeat(gctx)
		})
	}
	return grp.Wait()
}

func (srv *Server) loop(ctx context.Context) error {
	tick := time.NewTicker(srv.freq)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			err := srv.poll(ctx)
			if err != nil {
				srv.msg.Printf("could not service chip: %+v", err)
			}
		}
	}
}

// poll runs one interrupt servicing round: collect the pending
// reasons, act on them, re-enable interrupts.
func (srv *Server) poll(ctx context.Context) error {
	reasons, err := srv.dev.InterruptReasons()
	if err != nil {
		return xerrors.Errorf("could not read interrupt reasons: %w", err)
	}

	if reasons&qcaspi.IntCPUOn != 0 {
		// The chip restarted behind our back.
		srv.msg.Printf("chip performed a startup, re-initializing...")
		err := srv.dev.Startup()
		if err != nil {
			return xerrors.Errorf("could not re-initialize chip: %w", err)
		}
		// Startup re-enabled interrupts already.
		return nil
	}

	if reasons&(qcaspi.IntWrBufErr|qcaspi.IntRdBufErr) != 0 {
		srv.msg.Printf("chip buffer error (reasons=0x%04x), resetting...", reasons)
		err := srv.dev.Reset()
		if err != nil {
			return xerrors.Errorf("could not reset chip: %w", err)
		}
		// The reset completion raises IntCPUOn; the next poll
		// round re-initializes.
		return nil
	}

	if reasons&qcaspi.IntPktAvail != 0 {
		err := srv.drain(ctx)
		if err != nil {
			return xerrors.Errorf("could not drain read buffer: %w", err)
		}
	}

	err = srv.dev.InterruptsEnableAll()
	if err != nil {
		return xerrors.Errorf("could not re-enable interrupts: %w", err)
	}
	return nil
}

// drain assembles frames out of the chip read buffer until it runs
// empty or a frame stays in progress.
func (srv *Server) drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, done, err := srv.dev.Recv(srv.buf)
		switch {
		case errors.Is(err, qcaspi.ErrEmptyReadBuffer):
			return nil
		case err != nil:
			return err
		case !done:
			// Mid-frame; the rest arrives with the next
			// interrupt.
			return nil
		}

		p := make([]byte, n)
		copy(p, srv.buf[:n])
		select {
		case srv.out <- p:
			srv.nrecv.Add(1)
		default:
			srv.ndrop.Add(1)
		}
	}
}

// beatMsg is one heartbeat record, sent as a JSON line.
type beatMsg struct {
	Name  string `json:"name"`
	Recv  int    `json:"recv"`
	Sent  int    `json:"sent"`
	Drop  int    `json:"drop"`
	Stamp int64  `json:"stamp"`
}

// heartbeat periodically reports liveness and traffic counters to
// the monitoring process.
func (srv *Server) heartbeat(ctx context.Context) error {
	conn, err := net.Dial("tcp", srv.beat)
	if err != nil {
		return xerrors.Errorf("could not dial heartbeat address %q: %w", srv.beat, err)
	}
	defer conn.Close()

	var (
		enc  = json.NewEncoder(conn)
		tick = time.NewTicker(srv.beatFreq)
	)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			err := enc.Encode(beatMsg{
				Name:  "qca7k-daq",
				Recv:  int(srv.nrecv.Load()),
				Sent:  int(srv.nsent.Load()),
				Drop:  int(srv.ndrop.Load()),
				Stamp: time.Now().Unix(),
			})
			if err != nil {
				return xerrors.Errorf("could not send heartbeat: %w", err)
			}
		}
	}
}
