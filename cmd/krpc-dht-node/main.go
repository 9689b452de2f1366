package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dpeckham/go-krpc/krpc/dhtproto"
	"github.com/dpeckham/go-krpc/krpc/service"
	"github.com/dpeckham/go-krpc/krpcid"
)

func usage() {
	fmt.Printf(`%s [options]

    -listen addr       UDP address to bind (default ":6881")
    -timeout dur       Per-call timeout, e.g. "5s" (default "15s")
    -debug-addr addr   If set, serve JSON diagnostics at http://addr/debug/krpc
    -ping addr         If set, ping addr once and print the reply, then exit
`, os.Args[0])
	os.Exit(2)
}

func main() {
	var listenAddr, debugAddr, pingAddr string
	var timeout time.Duration
	flag.Usage = usage
	flag.StringVar(&listenAddr, "listen", ":6881", "")
	flag.DurationVar(&timeout, "timeout", 15*time.Second, "")
	flag.StringVar(&debugAddr, "debug-addr", "", "")
	flag.StringVar(&pingAddr, "ping", "", "")
	flag.Parse()

	bindAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		logrus.WithError(err).Fatal("krpc-dht-node: bad -listen address")
	}

	id, err := krpcid.NewSha1ID()
	if err != nil {
		logrus.WithError(err).Fatal("krpc-dht-node: failed to generate node id")
	}
	node, err := service.New[dhtproto.Method, dhtproto.Arg, dhtproto.Res](
		dhtproto.PingHandler{ID: id},
		bindAddr,
		service.Options{Timeout: timeout, SubmitQueueDepth: 8},
	)
	if err != nil {
		logrus.WithError(err).Fatal("krpc-dht-node: failed to start")
	}
	defer node.Close()

	logrus.WithFields(logrus.Fields{
		"id":   id.String(),
		"addr": node.LocalAddr(),
	}).Info("krpc-dht-node: listening")

	if debugAddr != "" {
		e := node.ListenDebug(debugAddr)
		defer e.Close()
	}

	if pingAddr != "" {
		runPing(node, id, pingAddr, timeout)
		return
	}

	waitForSignal()
}

func runPing(node *service.Service[dhtproto.Method, dhtproto.Arg, dhtproto.Res, dhtproto.PingHandler], id krpcid.Sha1ID, addr string, timeout time.Duration) {
	target, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		logrus.WithError(err).Fatal("krpc-dht-node: bad -ping address")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := node.Call(ctx, target, dhtproto.Arg{ID: id})
	if err != nil {
		logrus.WithError(err).Fatal("krpc-dht-node: ping failed")
	}
	fmt.Printf("pong from %s: id=%s\n", target, res.ID)
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
