package main

import "time"

// measurement is what to acquire, read from the "measurement" section
// of the configuration alongside acquire.Options.
type measurement struct {
	BinWidth       float64       `mapstructure:"bin_width"`       // requested bin width, s
	RecordLength   float64       `mapstructure:"record_length"`   // requested record length, s; per gate when gated
	Gates          int           `mapstructure:"gates"`           // gates per repetition in gated modes
	SchedName      string        `mapstructure:"sched"`           // "background" or "foreground"
	TriggerRate    float64       `mapstructure:"trigger_rate"`    // simulated trigger rate, Hz
	ReportInterval time.Duration `mapstructure:"report_interval"` // how often to print the average
	MetricsAddr    string        `mapstructure:"metrics_addr"`    // serve prometheus metrics here if set
}

// triggerPeriod is the interval between simulated triggers.
func (m *measurement) triggerPeriod() time.Duration {
	if m.TriggerRate <= 0 {
		return time.Second
	}
	p := time.Duration(float64(time.Second) / m.TriggerRate)
	if p <= 0 {
		p = time.Microsecond
	}
	return p
}
