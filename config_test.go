package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jbrzusto/fastcounter/acquire"
	"github.com/jbrzusto/fastcounter/card"
)

func newTestViper(t *testing.T, args ...string) *viper.Viper {
	fs := newFlags()
	require.NoError(t, fs.Parse(args))
	v := viper.New()
	setDefaultConfig(v)
	require.NoError(t, bindFlags(v, fs))
	return v
}

func TestDefaultConfig(t *testing.T) {
	require := require.New(t)
	cfg, err := decodeConfig(newTestViper(t))
	require.NoError(err)

	def := acquire.DefaultOptions()
	require.Equal(card.MODE_FIFO_MULTI, cfg.Opts.Card.Mode)
	require.Equal(card.TRG_EXT, cfg.Opts.Card.Trig)
	require.Equal(def.Card.PreTrigSamples, cfg.Opts.Card.PreTrigSamples)
	require.Equal(acquire.SCHED_BACKGROUND, cfg.Opts.Sched)
	require.Equal(def.InitBufSamples, cfg.Opts.InitBufSamples)
	require.Equal(def.DataTimeout, cfg.Opts.DataTimeout)
	require.Equal(card.MIN_SAMPLE_PERIOD, cfg.Meas.BinWidth)
	require.Equal(1, cfg.Meas.Gates)
	require.Equal(time.Second, cfg.Meas.ReportInterval)
	require.Equal(time.Millisecond, cfg.Meas.triggerPeriod())
	require.Equal("info", cfg.Log.Level)
}

func TestConfigFileAndFlags(t *testing.T) {
	require := require.New(t)
	file := filepath.Join(t.TempDir(), "fastcounter.toml")
	require.NoError(os.WriteFile(file, []byte(`
[card]
acq_mode = "FIFO_GATE"
pre_trig_samples = 8
post_trig_samples = 8
trig_mode = "sw"

[measurement]
gates = 4
double_gate = true
data_timeout = "250ms"
buf_ratio = 0.5
sched = "foreground"

[log]
level = "debug"
`), 0o644))

	v := newTestViper(t, "--gates=3", "--report=2s")
	found, err := loadConfig(v, file)
	require.NoError(err)
	require.True(found)
	cfg, err := decodeConfig(v)
	require.NoError(err)

	require.Equal(card.MODE_FIFO_GATE, cfg.Opts.Card.Mode)
	require.Equal(card.TRG_SW, cfg.Opts.Card.Trig)
	require.Equal(8, cfg.Opts.Card.PostTrigSamples)
	require.True(cfg.Opts.DoubleGate)
	require.Equal(250*time.Millisecond, cfg.Opts.DataTimeout)
	require.Equal(0.5, cfg.Opts.BufRatio)
	require.Equal(acquire.SCHED_FOREGROUND, cfg.Opts.Sched)
	require.Equal(3, cfg.Meas.Gates)
	require.Equal(2*time.Second, cfg.Meas.ReportInterval)
	require.Equal("debug", cfg.Log.Level)
}

func TestConfigErrors(t *testing.T) {
	v := newTestViper(t)
	found, err := loadConfig(v, filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	require.False(t, found)

	_, err = decodeConfig(newTestViper(t, "--mode=FIFO_TURBO"))
	require.Error(t, err)
	_, err = decodeConfig(newTestViper(t, "--sched=sometimes"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	file := filepath.Join(t.TempDir(), "fastcounter.log")
	log, err := newLogger(logConfig{Level: "info", Format: "json", File: file, MaxSizeMB: 1})
	require.NoError(t, err)
	log.Info("hello", zap.Int("n", 1))

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"hello"`)

	_, err = newLogger(logConfig{Level: "loud"})
	require.Error(t, err)
	_, err = newLogger(logConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
}
