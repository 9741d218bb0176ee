package config

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Raw is the unprocessed content of a config file. Every field is optional,
// only the ones present override the defaults.
//
//	clear: true
//	timeout: 30      # seconds
//	delay: 250       # milliseconds
//	poll: 500ms
//	signal: SIGINT
//	schedule: "@every 1m"
//	paths: [src, go.mod]
//	command: [go, test, ./...]
type Raw struct {
	Clear     *bool `yaml:"clear"`
	Postpone  *bool `yaml:"postpone"`
	Recursive *bool `yaml:"recursive"`
	Shell     *bool `yaml:"shell"`
	Exit      *bool `yaml:"exit"`
	NoGroup   *bool `yaml:"no-group"`

	Timeout *int   `yaml:"timeout"`
	Delay   *int   `yaml:"delay"`
	Poll    string `yaml:"poll"`

	Signal   string   `yaml:"signal"`
	Schedule string   `yaml:"schedule"`
	Paths    []string `yaml:"paths"`
	Command  []string `yaml:"command"`
}

// Parse reads config from the specified reader into the struct
func (r *Raw) Parse(reader io.Reader) error {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	err := decoder.Decode(r)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	return nil
}

// Apply copies every field present in the file onto cfg
func (r *Raw) Apply(cfg *Config) error {
	setBool(&cfg.ClearTerm, r.Clear)
	setBool(&cfg.Postpone, r.Postpone)
	setBool(&cfg.Recursive, r.Recursive)
	setBool(&cfg.UseShell, r.Shell)
	setBool(&cfg.ExitAfterFirstRun, r.Exit)
	setBool(&cfg.NoGroup, r.NoGroup)

	if r.Timeout != nil {
		if *r.Timeout == 0 {
			cfg.IdleTimeout = nil
		} else {
			timeout := time.Duration(*r.Timeout) * time.Second
			cfg.IdleTimeout = &timeout
		}
	}
	if r.Delay != nil {
		cfg.Delay = time.Duration(*r.Delay) * time.Millisecond
	}
	if r.Poll != "" {
		poll, err := time.ParseDuration(r.Poll)
		if err != nil {
			return fmt.Errorf("parse poll interval %q: %w", r.Poll, err)
		}
		cfg.Poll = poll
	}

	if r.Signal != "" {
		cfg.Signal = r.Signal
	}
	if r.Schedule != "" {
		cfg.Schedule = r.Schedule
	}
	if len(r.Paths) > 0 {
		cfg.Targets = append([]string(nil), r.Paths...)
	}
	if len(r.Command) > 0 {
		cfg.Command = append([]string(nil), r.Command...)
	}
	return nil
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
