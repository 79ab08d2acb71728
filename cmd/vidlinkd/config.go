package main

import (
	"os"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Daemon settings. Values come from the YAML file named by --config, and
// flags given on the command line take precedence.
type daemonConfig struct {
	Source         string `yaml:"source"`
	Output         string `yaml:"output"`
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
	FrameRate      int    `yaml:"fps"`
	MetricsAddress string `yaml:"metrics_address"`
	Log            string `yaml:"log"`
}

func loadConfig(flags *flag.FlagSet) (*daemonConfig, error) {
	cfg := &daemonConfig{
		Source:         flagSource,
		Output:         flagOutput,
		Width:          flagWidth,
		Height:         flagHeight,
		FrameRate:      flagFrameRate,
		MetricsAddress: flagMetricsAddr,
		Log:            flagLogLevel,
	}
	if flagConfig == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(flagConfig)
	if err != nil {
		return nil, err
	}
	var file daemonConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse %s", flagConfig)
	}

	override := func(name string, dst *string, v string) {
		if v != "" && !flags.Changed(name) {
			*dst = v
		}
	}
	overrideInt := func(name string, dst *int, v int) {
		if v != 0 && !flags.Changed(name) {
			*dst = v
		}
	}
	override("source", &cfg.Source, file.Source)
	override("output", &cfg.Output, file.Output)
	overrideInt("width", &cfg.Width, file.Width)
	overrideInt("height", &cfg.Height, file.Height)
	overrideInt("fps", &cfg.FrameRate, file.FrameRate)
	override("metrics-address", &cfg.MetricsAddress, file.MetricsAddress)
	override("log", &cfg.Log, file.Log)
	return cfg, nil
}
