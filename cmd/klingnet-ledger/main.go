// klingnet-ledger manages local block ledgers: it stores blocks, tracks each
// ledger's tip and verifies the chain from tip to genesis.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func main() {
	a := &app{}
	err := a.rootCmd().Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := exitHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

// app carries the state shared by all subcommands of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
	mgr     *ledger.Manager
	srv     *http.Server

	// shutdownTimeout bounds the metrics server drain on close.
	shutdownTimeout time.Duration
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "klingnet-ledger",
		Short:         "Store, forward and verify local block ledgers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default <root-dir>/"+config.ConfigFileName+")")
	pf.String("root-dir", config.DefaultRootDir(), "directory holding the ledgers")
	pf.String("backend", string(config.BackendBadger), "storage backend: badger or memory")
	pf.String("log-level", "info", "log level: trace, debug, info, warn, error")
	pf.String("log-file", "", "also write logs to this file")
	pf.Bool("log-json", false, "log as JSON")
	pf.Int("cache-blocks", config.DefaultCacheBlocks, "raw blocks cached per open ledger")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		a.listCmd(),
		a.newCmd(),
		a.removeCmd(),
		a.putCmd(),
		a.getCmd(),
		a.verifyCmd(),
		a.forwardCmd(),
		a.tipCmd(),
		a.blocksCmd(),
		a.initConfigCmd(),
	)
	return root
}

// setup loads configuration, starts logging and metrics, and opens the
// ledger manager.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if a.cfgFile == "" {
		base, err := config.Load("", flags)
		if err != nil {
			return err
		}
		a.cfgFile = base.ConfigFile()
	}
	cfg, err := config.Load(a.cfgFile, flags)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		a.serveMetrics(reg, ln)
	}

	mgr, err := ledger.New(cfg, m)
	if err != nil {
		return err
	}
	a.mgr = mgr
	return nil
}

func (a *app) serveMetrics(g prometheus.Gatherer, ln net.Listener) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	addr := ln.Addr().String()
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.srv = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	klog.Logger.Info().Str("addr", addr).Msg("Serving metrics")
}

func (a *app) close() error {
	if a.srv != nil {
		timeout := a.shutdownTimeout
		if timeout == 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			klog.Logger.Warn().Err(err).Msg("Metrics server shutdown")
		}
		a.srv = nil
	}
	if a.mgr != nil {
		return a.mgr.Close()
	}
	return nil
}
