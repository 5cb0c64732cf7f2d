// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Query-farm/ddb-arrow/conformance"
	"github.com/Query-farm/ddb-arrow/ddbarrow"
)

func main() {
	configPath := flag.String("config", "", "TOML config file")
	httpAddr := flag.String("http", "", "serve the HTTP gateway on this address after the cases run")
	flag.Parse()

	cfg := ddbarrow.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = ddbarrow.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
	}
	if *httpAddr != "" {
		cfg.GatewayAddr = *httpAddr
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	conn := conformance.NewMemoryConn()
	session, err := ddbarrow.NewSessionFromConfig(conn, cfg, ddbarrow.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	ctx := context.Background()
	if _, err := session.ConnectConfig(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	failed := 0
	for _, r := range conformance.RunCases(ctx, session) {
		if r.Err != nil {
			failed++
			fmt.Printf("FAIL %s: %v\n", r.Name, r.Err)
			continue
		}
		fmt.Printf("PASS %s\n", r.Name)
	}
	if failed > 0 {
		fmt.Printf("%d case(s) failed\n", failed)
		os.Exit(1)
	}

	if cfg.GatewayAddr == "" {
		return
	}

	var streaming *ddbarrow.Streaming
	if cfg.StreamingPort > 0 {
		streaming = ddbarrow.NewStreaming(session.Codec(), conformance.NewPublisher().TransportFactory())
		streaming.SetLogger(logger)
		if err := streaming.Listen(cfg.StreamingPort); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		defer streaming.Close()
	}

	listener, err := net.Listen("tcp", cfg.GatewayAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen: %v\n", err)
		os.Exit(1)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Printf("PORT:%d\n", port)
	os.Stdout.Sync()

	srv := &http.Server{Handler: ddbarrow.NewGateway(session, streaming, cfg.GatewayPrefix)}

	// Catch SIGTERM/SIGINT so the process exits cleanly and flushes
	// coverage data when built with -cover.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "http serve error: %v\n", err)
		os.Exit(1)
	}
}
