// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command qca7k-ctl is an interactive shell to poke at a
// QCA7000-class chip on an SPI bus.
//
// Available commands:
//
//	sig             read the chip signature
//	boot            run the startup sequence
//	reset           soft-reset the chip
//	irq             read and acknowledge the interrupt reasons
//	int on|off      enable or disable all interrupts
//	send <hex>      transmit a frame with the given payload
//	recv            drain and display pending frames
//	quit            exit the shell
package main // import "github.com/go-plc/qca7k/cmd/qca7k-ctl"

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/go-plc/qca7k/qcaspi"
	"github.com/go-plc/qca7k/spidev"
	"github.com/peterh/liner"
)

func main() {
	var (
		bus   = flag.Int("bus", 0, "SPI bus number")
		chip  = flag.Int("cs", 0, "SPI chip select line")
		speed = flag.Int("speed", 8000000, "SPI clock speed (Hz)")
	)

	flag.Parse()

	log.SetPrefix("qca7k-ctl: ")
	log.SetFlags(0)

	err := run(*bus, *chip, *speed)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(bus, chip, speed int) error {
	spi, err := spidev.Open(bus, chip, spidev.WithSpeed(speed))
	if err != nil {
		return fmt.Errorf("could not open SPI bus: %w", err)
	}
	defer spi.Close()

	dev := qcaspi.New(spi)

	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		line, err := term.Prompt("qca7k> ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case err != nil:
			return nil // EOF
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		if line == "quit" || line == "exit" {
			return nil
		}

		err = handle(dev, line)
		if err != nil {
			log.Printf("%+v", err)
		}
	}
}

func handle(dev *qcaspi.Device, line string) error {
	args := strings.Fields(line)
	switch args[0] {
	case "sig":
		sig, err := dev.Signature()
		if err != nil {
			return fmt.Errorf("could not read signature: %w", err)
		}
		fmt.Printf("signature: 0x%04x\n", sig)

	case "boot":
		err := dev.Startup()
		if err != nil {
			return fmt.Errorf("could not start up chip: %w", err)
		}
		fmt.Printf("chip up, interrupts enabled\n")

	case "reset":
		err := dev.Reset()
		if err != nil {
			return fmt.Errorf("could not reset chip: %w", err)
		}
		fmt.Printf("reset requested\n")

	case "irq":
		reasons, err := dev.InterruptReasons()
		if err != nil {
			return fmt.Errorf("could not read interrupt reasons: %w", err)
		}
		fmt.Printf("reasons: 0x%04x\n", reasons)

	case "int":
		if len(args) != 2 {
			return fmt.Errorf("usage: int on|off")
		}
		switch args[1] {
		case "on":
			return dev.InterruptsEnableAll()
		case "off":
			return dev.InterruptsDisableAll()
		default:
			return fmt.Errorf("usage: int on|off")
		}

	case "send":
		if len(args) != 2 {
			return fmt.Errorf("usage: send <hex>")
		}
		p, err := hex.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
		err = dev.Send(p)
		if err != nil {
			return fmt.Errorf("could not send frame: %w", err)
		}
		fmt.Printf("sent %d bytes\n", len(p))

	case "recv":
		buf := make([]byte, qcaspi.FrameMax)
		for {
			n, done, err := dev.Recv(buf)
			switch {
			case errors.Is(err, qcaspi.ErrEmptyReadBuffer):
				fmt.Printf("no more data (stage=%v)\n", dev.RecvStage())
				return nil
			case err != nil:
				return fmt.Errorf("could not receive frame: %w", err)
			case !done:
				continue
			}
			fmt.Printf("frame (%d bytes):\n%s", n, hex.Dump(buf[:n]))
		}

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
