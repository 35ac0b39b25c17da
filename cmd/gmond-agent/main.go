// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gmond-agent.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/ClusterCockpit/gmond-agent/internal/agent"
	"github.com/ClusterCockpit/gmond-agent/internal/config"
	"github.com/ClusterCockpit/gmond-agent/internal/report"
	"github.com/ClusterCockpit/gmond-agent/internal/runtimeEnv"
	gopsagent "github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var flagConfigFile, flagUser, flagGroup string
	var flagGops, flagStopImmediately bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default configuration with the options in `config.json`")
	flag.StringVar(&flagUser, "user", "", "Drop privileges to this user after binding all channels")
	flag.StringVar(&flagGroup, "group", "", "Drop privileges to this group after binding all channels")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&flagStopImmediately, "no-server", false, "Load and validate the configuration, then exit without running")
	flag.Parse()

	if flagGops {
		if err := gopsagent.Listen(gopsagent.Options{}); err != nil {
			cclog.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		cclog.Fatalf("loading configuration failed: %s", err.Error())
	}

	if flagStopImmediately {
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		cclog.Fatalf("could not determine hostname: %s", err.Error())
	}
	startTime := uint32(time.Now().Unix())

	core, err := agent.New(cfg, hostname, startTime, newProcfsProvider(), prometheus.DefaultRegisterer, time.Now())
	if err != nil {
		cclog.Fatalf("failed to initialize core: %s", err.Error())
	}

	if err := runtimeEnv.DropPrivileges(flagUser, flagGroup); err != nil {
		cclog.Fatalf("error while changing user: %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := core.Run(ctx); err != nil {
			cclog.Errorf("core loop stopped: %s", err.Error())
		}
	}()

	var srv *report.Server
	if cfg.ReportAddr != "" {
		srv = report.New(cfg.ReportAddr, core.Table, nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(); err != nil {
				cclog.Errorf("report server stopped: %s", err.Error())
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	runtimeEnv.SystemdNotifiy(true, "running")
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			cclog.Errorf("report server shutdown: %s", err.Error())
		}
		shutdownCancel()
	}

	wg.Wait()
	cclog.Info("Graceful shutdown completed!")
}
