package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/ldmrs/internal/config"
	"github.com/banshee-data/ldmrs/internal/ldmrs"
	"github.com/banshee-data/ldmrs/internal/transport"
)

// oneShotFlags are the mutually exclusive configuration actions.
var oneShotFlags = []string{"get", "get-status", "reset", "set", "reset-dsp", "start", "stop"}

type options struct {
	address    string
	configPath string

	get       string
	set       string
	getStatus bool
	reset     bool
	resetDSP  bool
	start     bool
	stop      bool

	verbose       bool
	stopOnExit    bool
	replay        string
	replayPort    uint
	metricsListen string
	record        string
	showVersion   bool

	given map[string]bool
}

const usageText = `publish scan data from a SICK LD-MRS laser on stdout, or configure it

usage
    ldmrs-stream [<address:port>] [<options>]

    <address:port>: laser address; default %s

configuration actions (at most one)
    --get "<name>[,<name>]": print parameter values (address, port, subnet, gateway)
    --set "<name>=<value>[,<name>=<value>]": set parameters and save configuration
    --get-status: print laser status
    --reset: reset laser to factory settings
    --reset-dsp: reset laser dsp
    --start: start measuring
    --stop: stop measuring

without an action, start measuring and write every scan frame to stdout
until interrupted or the laser closes the connection

options
`

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{given: map[string]bool{}}

	fs := flag.NewFlagSet("ldmrs-stream", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), usageText, transport.DefaultAddress)
		fs.PrintDefaults()
	}

	fs.StringVar(&o.configPath, "config", "", "Path to a YAML/JSON config file (LDMRS_* environment variables override it)")
	fs.StringVar(&o.get, "get", "", "Comma-separated parameters to print")
	fs.StringVar(&o.set, "set", "", "Comma-separated <name>=<value> assignments to apply")
	fs.BoolVar(&o.getStatus, "get-status", false, "Print laser status")
	fs.BoolVar(&o.reset, "reset", false, "Reset laser to factory settings")
	fs.BoolVar(&o.resetDSP, "reset-dsp", false, "Reset laser DSP")
	fs.BoolVar(&o.start, "start", false, "Start measuring and exit")
	fs.BoolVar(&o.stop, "stop", false, "Stop measuring and exit")
	fs.BoolVar(&o.verbose, "verbose", false, "Log progress at debug level")
	fs.BoolVar(&o.verbose, "v", false, "Shorthand for --verbose")
	fs.BoolVar(&o.stopOnExit, "stop-on-exit", false, "Send stop before exiting a stream on signal")
	fs.StringVar(&o.replay, "replay", "", "Stream scans from a pcap/pcapng capture instead of a laser")
	fs.UintVar(&o.replayPort, "replay-port", 12002, "Laser TCP port inside the capture")
	fs.StringVar(&o.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&o.record, "record", "", "Record scans and faults to this SQLite database")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	// The address may come before or after the options.
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		o.address = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch rest := fs.Args(); {
	case len(rest) == 1 && o.address == "":
		o.address = rest[0]
	case len(rest) > 0:
		return nil, fmt.Errorf("unexpected arguments %q", rest)
	}
	if o.address != "" {
		if _, _, err := transport.SplitAddress(o.address); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) { o.given[f.Name] = true })
	var actions []string
	for _, name := range oneShotFlags {
		if o.given[name] {
			actions = append(actions, "--"+name)
		}
	}
	if len(actions) > 1 {
		return nil, fmt.Errorf("options %s are mutually exclusive", strings.Join(actions, ", "))
	}
	if len(actions) == 1 && o.replay != "" {
		return nil, fmt.Errorf("--replay cannot be combined with %s", actions[0])
	}
	if o.replayPort == 0 || o.replayPort > 65535 {
		return nil, fmt.Errorf("--replay-port %d out of range", o.replayPort)
	}
	return o, nil
}

// oneShot returns the requested configuration action, or nil when the
// command line asks for streaming. get/set specs are validated here, before
// anything is sent.
func (o *options) oneShot() (*ldmrs.OneShot, error) {
	switch {
	case o.given["get"]:
		cmds, err := ldmrs.ParseGetSpec(o.get)
		if err != nil {
			return nil, err
		}
		return &ldmrs.OneShot{Action: ldmrs.ActionGet, Commands: cmds}, nil
	case o.given["set"]:
		cmds, err := ldmrs.ParseSetSpec(o.set)
		if err != nil {
			return nil, err
		}
		return &ldmrs.OneShot{Action: ldmrs.ActionSet, Commands: cmds}, nil
	case o.getStatus:
		return &ldmrs.OneShot{Action: ldmrs.ActionGetStatus}, nil
	case o.reset:
		return &ldmrs.OneShot{Action: ldmrs.ActionReset}, nil
	case o.resetDSP:
		return &ldmrs.OneShot{Action: ldmrs.ActionResetDSP}, nil
	case o.start:
		return &ldmrs.OneShot{Action: ldmrs.ActionStart}, nil
	case o.stop:
		return &ldmrs.OneShot{Action: ldmrs.ActionStop}, nil
	}
	return nil, nil
}

// apply overlays command-line settings on cfg.
func (o *options) apply(cfg *config.Config) {
	if o.address != "" {
		cfg.Device.Address = o.address
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	if o.stopOnExit {
		cfg.Stream.StopOnExit = true
	}
	if o.metricsListen != "" {
		cfg.Metrics.Listen = o.metricsListen
	}
	if o.record != "" {
		cfg.Recorder.Path = o.record
	}
}
