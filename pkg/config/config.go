// Package config parses netpix's command-line flags into a runtime Config.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// Config holds every flag-derived setting a run needs: which sources to
// open, where to listen, and the tuning knobs for ring retention and
// client pacing.
type Config struct {
	Files      []string
	Interfaces []string
	LogFiles   []string

	CaptureFilter string

	Address string
	Port    int
	Promisc bool

	BufferSize      int
	MessageInterval time.Duration
	MaxPacketAge    time.Duration

	messageIntervalMs int
	maxPacketAgeSecs  int
}

// stringList implements flag.Value, accumulating one entry per flag
// occurrence (so -f a.pcap -f b.pcap yields ["a.pcap", "b.pcap"]).
type stringList struct {
	values *[]string
}

func (s stringList) String() string {
	if s.values == nil {
		return ""
	}
	return strings.Join(*s.values, ",")
}

func (s stringList) Set(v string) error {
	*s.values = append(*s.values, v)
	return nil
}

// RegisterFlags registers netpix's flags on fs and returns the Config they
// populate once fs.Parse has run.
func RegisterFlags(fs *flag.FlagSet) *Config {
	cfg := &Config{}

	fs.Var(stringList{&cfg.Files}, "f", "PCAP file to read (repeatable)")
	fs.Var(stringList{&cfg.Files}, "files", "PCAP file to read (repeatable)")
	fs.Var(stringList{&cfg.Interfaces}, "i", "network interface to capture live (repeatable)")
	fs.Var(stringList{&cfg.Interfaces}, "interfaces", "network interface to capture live (repeatable)")
	fs.Var(stringList{&cfg.LogFiles}, "l", "WebRTC event log file to tail (repeatable)")
	fs.Var(stringList{&cfg.LogFiles}, "log-files", "WebRTC event log file to tail (repeatable)")

	fs.StringVar(&cfg.CaptureFilter, "c", "", "BPF capture filter")
	fs.StringVar(&cfg.CaptureFilter, "capture", "", "BPF capture filter")

	fs.StringVar(&cfg.Address, "a", "127.0.0.1", "address to listen on")
	fs.StringVar(&cfg.Address, "address", "127.0.0.1", "address to listen on")
	fs.IntVar(&cfg.Port, "p", 3550, "port to listen on")
	fs.IntVar(&cfg.Port, "port", 3550, "port to listen on")
	fs.BoolVar(&cfg.Promisc, "P", false, "enable promiscuous mode on live interfaces")
	fs.BoolVar(&cfg.Promisc, "promisc", false, "enable promiscuous mode on live interfaces")

	fs.IntVar(&cfg.BufferSize, "b", 32768, "per-source ring buffer capacity")
	fs.IntVar(&cfg.BufferSize, "buffer-size", 32768, "per-source ring buffer capacity")

	cfg.messageIntervalMs = 5
	cfg.maxPacketAgeSecs = 300
	fs.IntVar(&cfg.messageIntervalMs, "m", 5, "milliseconds between stats broadcasts")
	fs.IntVar(&cfg.messageIntervalMs, "message-interval", 5, "milliseconds between stats broadcasts")
	fs.IntVar(&cfg.maxPacketAgeSecs, "M", 300, "seconds before a ring entry ages out")
	fs.IntVar(&cfg.maxPacketAgeSecs, "maximum-package-age", 300, "seconds before a ring entry ages out")

	return cfg
}

// Finalize derives the duration fields from their flag-parsed raw values.
// Call after fs.Parse has run.
func (c *Config) Finalize() {
	c.MessageInterval = time.Duration(c.messageIntervalMs) * time.Millisecond
	c.MaxPacketAge = time.Duration(c.maxPacketAgeSecs) * time.Second
}

// Validate checks that at least one source was configured.
func (c *Config) Validate() error {
	if len(c.Files) == 0 && len(c.Interfaces) == 0 && len(c.LogFiles) == 0 {
		return fmt.Errorf("config: at least one of -f, -i, or -l is required")
	}
	return nil
}
