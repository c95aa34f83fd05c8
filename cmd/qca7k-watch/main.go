// Copyright 2021 The go-plc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command qca7k-watch monitors the heartbeat of a qca7k-daq process
// and raises mail alerts when the bridge stalls.
//
// Mail alerts are configured through the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables.
package main // import "github.com/go-plc/qca7k/cmd/qca7k-watch"

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		addr = flag.String("addr", ":8867", "[ip]:port to listen on")
		freq = flag.Duration("freq", 30*time.Second, "stall detection interval")
	)

	flag.Parse()

	log.SetPrefix("qca7k-watch: ")
	log.SetFlags(0)

	run(*addr, *freq)
}

func run(addr string, freq time.Duration) {
	srv, err := newServer(addr, freq)
	if err != nil {
		log.Fatalf("could not create server: %+v", err)
	}
	log.Printf("running qca7k-watch server on %q...", addr)
	srv.run()
}

type server struct {
	conn net.Listener

	freq   time.Duration
	alerts map[string]int // number of alerts per subject
}

func newServer(addr string, freq time.Duration) (*server, error) {
	srv, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %q: %w", addr, err)
	}
	return &server{
		conn:   srv,
		freq:   freq,
		alerts: make(map[string]int),
	}, nil
}

func (srv *server) run() {
	defer srv.conn.Close()

	for {
		conn, err := srv.conn.Accept()
		if err != nil {
			log.Printf("could not accept connection: %+v", err)
			continue
		}
		go srv.handle(conn)
	}
}

// beat mirrors the heartbeat record the bridge process sends.
type beat struct {
	Name  string `json:"name"`
	Recv  int    `json:"recv"`
	Sent  int    `json:"sent"`
	Drop  int    `json:"drop"`
	Stamp int64  `json:"stamp"`
}

func (srv *server) handle(conn net.Conn) {
	defer conn.Close()
	log.Printf("watching %v...", conn.RemoteAddr())
	defer log.Printf("watching %v... [done]", conn.RemoteAddr())

	var (
		beats = make(chan beat)
		done  = make(chan int)
	)
	defer close(done)

	go srv.monitor(conn.RemoteAddr().String(), beats, done)

	dec := json.NewDecoder(conn)
	for {
		var b beat
		err := dec.Decode(&b)
		if err != nil {
			log.Printf("could not decode heartbeat: %+v", err)
			return
		}
		beats <- b
	}
}

// monitor raises an alert when heartbeats stop arriving or when the
// bridge stops moving frames across probing intervals.
func (srv *server) monitor(from string, beats chan beat, quit chan int) {
	var (
		tick = time.NewTicker(srv.freq)
		cur  beat
		ref  beat
		seen bool
		live bool
	)
	defer tick.Stop()

	for {
		select {
		case <-quit:
			return
		case b := <-beats:
			cur = b
			seen = true
			live = true
		case <-tick.C:
			if !seen {
				continue
			}
			if !live {
				srv.alert(
					fmt.Sprintf("heartbeat lost from %s", from),
					fmt.Sprintf("no heartbeat from %q (%s) in the last %v",
						cur.Name, from, srv.freq,
					),
				)
				continue
			}
			if cur.Recv == ref.Recv && cur.Sent == ref.Sent {
				srv.alert(
					fmt.Sprintf("bridge stalled on %s", from),
					fmt.Sprintf("no frame moved by %q (%s) in the last %v (recv=%d, sent=%d, drop=%d)",
						cur.Name, from, srv.freq,
						cur.Recv, cur.Sent, cur.Drop,
					),
				)
			}
			ref = cur
			live = false
		}
	}
}

func (srv *server) alert(subject, body string) {
	log.Printf("alert: %s", body)
	srv.alerts[subject]++

	const maxAlerts = 5
	if srv.alerts[subject] < maxAlerts {
		srv.alertMail(subject, body)
	}
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func (srv *server) alertMail(subject, body string) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[qca7k-watch] %s", subject))
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
