package main

// this file contains all the code that directly uses the viper package
import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jbrzusto/fastcounter/acquire"
	"github.com/jbrzusto/fastcounter/card"
)

// config is everything read from the configuration file and flags.
// Options and measurement share the "measurement" section.
type config struct {
	Card card.Settings   `mapstructure:"card"`
	Opts acquire.Options `mapstructure:"measurement"`
	Meas measurement     `mapstructure:"measurement"`
	Log  logConfig       `mapstructure:"log"`
}

// loadConfig reads configuration from a TOML-formatted file called
// 'fastcounter.toml', looked for in /etc/fastcounter and then in the
// current directory, or from file if it is not empty.  Returns true
// if a config file was read.  A missing file is only an error when
// it was named explicitly.
func loadConfig(v *viper.Viper, file string) (bool, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("fastcounter") // name of config file (without extension)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/fastcounter")
		v.AddConfigPath(".") // optionally look for config in the working directory
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return true, nil
	case file == "" && errors.As(err, &notFound):
		return false, nil
	}
	return false, fmt.Errorf("reading config: %w", err)
}

// setDefaultConfig sets sane defaults for every key.  Values from the
// config file or flags override them.  There is no guarantee that
// the card values suit a particular experiment; they describe a
// single channel counting external triggers.
func setDefaultConfig(v *viper.Viper) {
	o := acquire.DefaultOptions()
	c := o.Card
	v.SetDefault("card.range_mv", c.RangeMV)
	v.SetDefault("card.offset_mv", c.OffsetMV)
	v.SetDefault("card.termination", c.Termination)
	v.SetDefault("card.coupling", c.Coupling)
	v.SetDefault("card.channels", c.Channels)
	v.SetDefault("card.acq_mode", c.ModeName)
	v.SetDefault("card.hw_averages", c.HWAverages)
	v.SetDefault("card.pre_trig_samples", c.PreTrigSamples)
	v.SetDefault("card.post_trig_samples", c.PostTrigSamples)
	v.SetDefault("card.ref_clock_hz", c.RefClockHz)
	v.SetDefault("card.trig_mode", c.TrigName)
	v.SetDefault("card.trig_level_mv", c.TrigLevelMV)
	v.SetDefault("card.notify_bytes", c.NotifyBytes)
	v.SetDefault("card.ts_notify_bytes", c.TSNotifyBytes)
	v.SetDefault("card.dma_file", "")

	v.SetDefault("measurement.bin_width", card.MIN_SAMPLE_PERIOD)
	v.SetDefault("measurement.record_length", 1e-6)
	v.SetDefault("measurement.gates", 1)
	v.SetDefault("measurement.sched", o.Sched.String())
	v.SetDefault("measurement.trigger_rate", 1000.0)
	v.SetDefault("measurement.report_interval", "1s")
	v.SetDefault("measurement.metrics_addr", "")
	v.SetDefault("measurement.repetitions", o.Repetitions)
	v.SetDefault("measurement.init_buf_samples", o.InitBufSamples)
	v.SetDefault("measurement.max_reps_per_buf", o.MaxRepsPerBuf)
	v.SetDefault("measurement.buf_ratio", o.BufRatio)
	v.SetDefault("measurement.double_gate", o.DoubleGate)
	v.SetDefault("measurement.stack", o.Stack)
	v.SetDefault("measurement.stack_limit", o.StackLimit)
	v.SetDefault("measurement.poll_interval", o.PollInterval)
	v.SetDefault("measurement.max_poll_interval", o.MaxPollInterval)
	v.SetDefault("measurement.data_timeout", o.DataTimeout)
	v.SetDefault("measurement.trigger_timeout", o.TriggerTimeout)
	v.SetDefault("measurement.max_range_errors", o.MaxRangeErrors)
	v.SetDefault("measurement.namespace", o.Namespace)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"bin-width":     "measurement.bin_width",
	"record-length": "measurement.record_length",
	"gates":         "measurement.gates",
	"repetitions":   "measurement.repetitions",
	"sched":         "measurement.sched",
	"trigger-rate":  "measurement.trigger_rate",
	"report":        "measurement.report_interval",
	"metrics-addr":  "measurement.metrics_addr",
	"stack":         "measurement.stack",
	"mode":          "card.acq_mode",
	"dma-file":      "card.dma_file",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-file":      "log.file",
}

// bindFlags makes the flags in flagKeys override the configuration.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("no flag %q for %s", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// decodeConfig unmarshals the card, measurement and log sections.
// The whole tree is decoded at once so that defaults, file values and
// flags are merged key by key.
func decodeConfig(v *viper.Viper) (*config, error) {
	cfg := &config{Opts: acquire.DefaultOptions()}
	cfg.Card = cfg.Opts.Card
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Card.Parse(); err != nil {
		return nil, err
	}
	cfg.Opts.Card = cfg.Card
	sched, err := acquire.ParseSched(cfg.Meas.SchedName)
	if err != nil {
		return nil, err
	}
	cfg.Opts.Sched = sched
	return cfg, nil
}
