// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command qca7k-daq starts a TDAQ server bridging a QCA7000-class
// powerline chip on an SPI bus.
//
// The SPI bus and chip select line are given as the first positional
// argument, as "B.C" (default "0.0").
package main // import "github.com/go-plc/qca7k/cmd/qca7k-daq"

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-plc/qca7k/daq"
	"github.com/go-plc/qca7k/qcaspi"
	"github.com/go-plc/qca7k/spidev"
)

func main() {
	cmd := flags.New()

	log.SetPrefix("qca7k-daq: ")
	log.SetFlags(0)

	bus, chip := 0, 0
	if len(cmd.Args) > 0 {
		var err error
		bus, chip, err = splitBusChip(cmd.Args[0])
		if err != nil {
			log.Fatalf("%+v", err)
		}
	}

	spi, err := spidev.Open(bus, chip)
	if err != nil {
		log.Fatalf("could not open SPI bus: %+v", err)
	}
	defer spi.Close()

	opts := []daq.Option{
		daq.WithPollInterval(10 * time.Millisecond),
	}
	if addr := os.Getenv("QCA7K_BEAT_ADDR"); addr != "" {
		opts = append(opts, daq.WithBeatAddr(addr))
	}

	dev := daq.New(qcaspi.New(spi), opts...)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)
	srv.CmdHandle("/xmit", dev.OnXmit)

	srv.OutputHandle("/eth", dev.Eth)

	srv.RunHandle(dev.Run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func splitBusChip(arg string) (bus, chip int, err error) {
	b, c, ok := strings.Cut(arg, ".")
	if !ok {
		return 0, 0, fmt.Errorf("invalid SPI device %q (want \"B.C\")", arg)
	}
	bus, err = strconv.Atoi(b)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid SPI bus %q: %w", b, err)
	}
	chip, err = strconv.Atoi(c)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid SPI chip select %q: %w", c, err)
	}
	return bus, chip, nil
}
