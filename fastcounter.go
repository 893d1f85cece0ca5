// Command fastcounter runs a fast counter measurement against a
// simulated digitizer card and prints the running average.
//
// Usage:
//
//	fastcounter [flags]
//
// Settings are read from fastcounter.toml (see config.go); flags
// override them.  With --dma-file the simulated card's sample ring is
// backed by that file, so cmd/showstat can watch it from another
// process.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/jbrzusto/fastcounter/acquire"
	"github.com/jbrzusto/fastcounter/card"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fastcounter: %v\n", err)
		os.Exit(1)
	}
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("fastcounter", pflag.ContinueOnError)
	fs.String("config", "", "config file; default is fastcounter.toml in /etc/fastcounter or .")
	fs.Float64("bin-width", card.MIN_SAMPLE_PERIOD, "bin width, s")
	fs.Float64("record-length", 1e-6, "record length, s; per gate in gated modes")
	fs.Int("gates", 1, "gates per repetition in gated modes")
	fs.Int64("repetitions", 0, "repetitions to acquire; 0 runs until interrupted")
	fs.String("sched", "background", "who drives the loop: background or foreground")
	fs.Float64("trigger-rate", 1000, "simulated trigger rate, Hz")
	fs.Duration("report", time.Second, "interval between printed averages")
	fs.String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9100")
	fs.Bool("stack", false, "keep every repetition")
	fs.String("mode", "FIFO_MULTI", "acquisition mode")
	fs.String("dma-file", "", "back the sample ring with this file")
	fs.String("log-level", "info", "log level")
	fs.String("log-format", "console", "log format: console or json")
	fs.String("log-file", "", "also log to this file")
	return fs
}

// pulse is the simulated signal: an exponential decay after the
// trigger, on a small flat background.
func pulse(rep int64, i int) int32 {
	return int32(2+1000*math.Exp(-float64(i)/200)) + int32(rep%3)
}

func run(args []string) error {
	fs := newFlags()
	if err := fs.Parse(args); err != nil {
		return err
	}
	v := viper.New()
	setDefaultConfig(v)
	if err := bindFlags(v, fs); err != nil {
		return err
	}
	file, _ := fs.GetString("config")
	found, err := loadConfig(v, file)
	if err != nil {
		return err
	}
	cfg, err := decodeConfig(v)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if !found {
		log.Warn("no fastcounter.toml found; using defaults")
	} else {
		log.Info("read config", zap.String("file", v.ConfigFileUsed()))
	}

	reg := prometheus.NewRegistry()
	cfg.Opts.Registerer = reg
	cfg.Opts.Log = log

	sim := card.NewSim(pulse)
	counter, err := acquire.NewCounter(sim, cfg.Opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := counter.Close(); err != nil {
			log.Warn("closing counter", zap.Error(err))
		}
	}()

	bw, rl, gates, err := counter.Configure(cfg.Meas.BinWidth, cfg.Meas.RecordLength, cfg.Meas.Gates)
	if err != nil {
		return err
	}
	log.Info("measurement",
		zap.Float64("binWidth", bw),
		zap.Float64("recordLength", rl),
		zap.Int("gates", gates),
		zap.Stringer("mode", cfg.Opts.Card.Mode),
	)
	if err := counter.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCancel(sim.Run(ctx, cfg.Meas.triggerPeriod()))
	})
	if cfg.Opts.Sched == acquire.SCHED_FOREGROUND {
		g.Go(func() error {
			return tickLoop(ctx, counter, cfg.Opts.PollInterval, log)
		})
	}
	g.Go(func() error {
		defer cancel()
		return report(ctx, counter, cfg.Meas.ReportInterval, log)
	})
	if cfg.Meas.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Meas.MetricsAddr, reg, log)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if st, err := counter.Status(); st == acquire.ST_ERROR {
		return err
	}
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tickLoop drives a SCHED_FOREGROUND counter until ctx is done or the
// measurement ends.  It sleeps for idle between ticks that consume
// nothing.
func tickLoop(ctx context.Context, c *acquire.Counter, idle time.Duration, log *zap.Logger) error {
	done := c.Done()
	var last int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		default:
		}
		err := c.Tick(ctx)
		switch {
		case err == nil:
		case errors.Is(err, acquire.ErrTimeout):
			log.Debug("no trigger", zap.Error(err))
			continue
		default:
			// the counter has recorded the error; report prints it
			return nil
		}
		bs, err := c.BufferStatus()
		if err != nil {
			return err
		}
		if bs.Count == last {
			time.Sleep(idle)
		}
		last = bs.Count
	}
}

// report prints a summary of the average every interval, and once
// more when the measurement ends.
func report(ctx context.Context, c *acquire.Counter, interval time.Duration, log *zap.Logger) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	done := c.Done()
	for {
		select {
		case <-ctx.Done():
			printTrace(c, log)
			return nil
		case <-done:
			printTrace(c, log)
			st, err := c.Status()
			log.Info("measurement ended", zap.Stringer("status", st), zap.Error(err))
			return nil
		case <-t.C:
			printTrace(c, log)
		}
	}
}

func printTrace(c *acquire.Counter, log *zap.Logger) {
	tr, err := c.GetDataTrace()
	if err != nil {
		log.Warn("reading trace", zap.Error(err))
		return
	}
	bs, err := c.BufferStatus()
	if err != nil {
		log.Warn("reading buffer status", zap.Error(err))
	}
	for g, row := range tr.Rows() {
		peak := 0.0
		for _, v := range row {
			peak = math.Max(peak, v)
		}
		fmt.Printf("%s reps=%d gate=%d mean=%.3f peak=%.3f unprocessed=%d stacked=%d trigger=%t\n",
			tr.Elapsed.Round(time.Millisecond), tr.Reps, g, stat.Mean(row, nil), peak,
			bs.Unprocessed, bs.Stacked, bs.TriggerEnabled)
	}
}

// serveMetrics serves reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
