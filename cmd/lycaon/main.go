// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lycaon runs the console daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yeetrun/lycaon/pkg/console"
	"github.com/yeetrun/lycaon/pkg/logutil"
	"go.uber.org/zap"
	"tailscale.com/util/must"
)

var (
	configPath  = flag.String("config", "lycaon.toml", "path to the TOML config file")
	showVersion = flag.Bool("version", false, "print the version and exit")
)

func main() {
	flag.Parse()
	if *showVersion || flag.Arg(0) == "version" {
		fmt.Println(console.Version())
		return
	}

	// Config loading logs through a bootstrap logger until the configured
	// level is known.
	boot := must.Get(logutil.New("info", false))
	cfg, err := console.LoadConfig(*configPath, boot)
	if err != nil {
		boot.Fatal("failed to load config", zap.String("path", *configPath), zap.Error(err))
	}
	log, err := logutil.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		boot.Fatal("failed to build logger", zap.String("log_level", cfg.LogLevel), zap.Error(err))
	}
	_ = boot.Sync()
	defer log.Sync()

	srv, err := console.NewServer(cfg, log)
	if err != nil {
		log.Fatal("failed to create console", zap.Error(err))
	}
	if err := srv.Listen(); err != nil {
		var se *console.StartupError
		if errors.As(err, &se) {
			log.Fatal("failed to bind", zap.String("addr", se.Addr), zap.Error(se.Err))
		}
		log.Fatal("failed to start", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Serve(ctx); err != nil {
		log.Error("console stopped", zap.Error(err))
	}
	srv.Shutdown()
	log.Info("console shut down")
}
