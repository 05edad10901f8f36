package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel      string
	LogFormat     string
	LogFile       string
	DebugRTP      bool
	DebugRTCP     bool
	DebugMpegts   bool
	DebugStun     bool
	DebugEventLog bool
	DebugHub      bool
	DebugAll      bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	fs.BoolVar(&f.DebugRTP, "debug-rtp", false, "Enable RTP decode debugging")
	fs.BoolVar(&f.DebugRTCP, "debug-rtcp", false, "Enable RTCP decode debugging")
	fs.BoolVar(&f.DebugMpegts, "debug-mpegts", false, "Enable MPEG-TS decode debugging")
	fs.BoolVar(&f.DebugStun, "debug-stun", false, "Enable STUN decode debugging")
	fs.BoolVar(&f.DebugEventLog, "debug-eventlog", false, "Enable WebRTC event-log decode debugging")
	fs.BoolVar(&f.DebugHub, "debug-hub", false, "Enable session hub debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false, "Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		cfg.Level = LevelDebug
	} else {
		for _, c := range []struct {
			on  bool
			cat DebugCategory
		}{
			{f.DebugRTP, DebugRTP},
			{f.DebugRTCP, DebugRTCP},
			{f.DebugMpegts, DebugMpegts},
			{f.DebugStun, DebugStun},
			{f.DebugEventLog, DebugEventLog},
			{f.DebugHub, DebugHub},
		} {
			if c.on {
				cfg.EnableCategory(c.cat)
				cfg.Level = LevelDebug
			}
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./netpix run -i eth0

  Enable DEBUG level:
    ./netpix run -i eth0 --log-level debug

  Log to file, JSON format:
    ./netpix run -i eth0 --log-format json -o netpix.log

  Debug RTP classification only:
    ./netpix run -i eth0 --debug-rtp

  Debug everything:
    ./netpix run -i eth0 --debug-all -o debug.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var cats []string
	if f.DebugAll {
		cats = append(cats, "all")
	} else {
		for _, c := range []struct {
			on   bool
			name string
		}{
			{f.DebugRTP, "rtp"},
			{f.DebugRTCP, "rtcp"},
			{f.DebugMpegts, "mpegts"},
			{f.DebugStun, "stun"},
			{f.DebugEventLog, "eventlog"},
			{f.DebugHub, "hub"},
		} {
			if c.on {
				cats = append(cats, c.name)
			}
		}
	}

	if len(cats) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(cats, ",")))
	}

	return strings.Join(parts, " ")
}
