package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/rjboer/sdragc/internal/agc"
	"github.com/rjboer/sdragc/internal/dsp"
	"github.com/rjboer/sdragc/internal/logging"
	"github.com/rjboer/sdragc/internal/receiver"
	"github.com/rjboer/sdragc/internal/sdr"
	"github.com/rjboer/sdragc/internal/telemetry"
)

var version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Config    kong.ConfigFlag  `short:"c" help:"JSON config file; keys are flag names in snake_case."`
	LogLevel  string           `name:"log-level" env:"AGC_LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string           `name:"log-format" env:"AGC_LOG_FORMAT" default:"text" enum:"text,json" help:"Log output format."`
	Version   kong.VersionFlag `short:"v" help:"Show version information."`

	Run      RunCmd      `cmd:"" help:"Run a simulated receiver under adaptive gain control."`
	Gain     GainCmd     `cmd:"" help:"Read or set the receive gain of an ADALM-Pluto over SSH."`
	Discover DiscoverCmd `cmd:"" help:"List IIOD radios advertised over mDNS."`
}

// app carries what every command needs.
type app struct {
	ctx    context.Context
	logger logging.Logger
	out    io.Writer
}

// defaultVars exposes the controller's stock tuning as kong defaults.
func defaultVars() kong.Vars {
	d := agc.DefaultConfig()
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return kong.Vars{
		"version":               version,
		"sample_rate":           f(d.SampleRate),
		"duty_cycle":            f(d.DutyCycle),
		"min_gain":              f(d.MinGainDB),
		"max_gain":              f(d.MaxGainDB),
		"range_target":          f(d.RangeTargetDB),
		"range_percentile":      strconv.Itoa(d.RangePercentile),
		"range_alpha":           f(d.RangeAlpha),
		"range_change_delay":    strconv.Itoa(d.RangeChangeDelay),
		"range_rescan_delay":    strconv.Itoa(d.RangeRescanDelay),
		"burst_alpha":           f(d.BurstAlpha),
		"burst_loud_rate":       f(d.BurstLoudRate),
		"burst_quiet_rate":      f(d.BurstQuietRate),
		"burst_loud_runlength":  strconv.Itoa(d.BurstLoudRunlength),
		"burst_quiet_runlength": strconv.Itoa(d.BurstQuietRunlength),
		"burst_change_delay":    strconv.Itoa(d.BurstChangeDelay),
	}
}

func newParser(cli *CLI, stdout io.Writer, configPaths ...string) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("agcd"),
		kong.Description("Adaptive gain control for SDR receivers"),
		kong.UsageOnError(),
		kong.Writers(stdout, os.Stderr),
		kong.Configuration(kong.JSON, configPaths...),
		defaultVars(),
	)
}

func newLogger(cli *CLI, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cli.LogFormat)
	if err != nil {
		return nil, err
	}
	return logging.New(level, format, w), nil
}

func main() {
	var cli CLI
	parser, err := newParser(&cli, os.Stdout, "/etc/agcd/config.json", "~/.config/agcd/config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "agcd: %v\n", err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger, err := newLogger(&cli, os.Stderr)
	parser.FatalIfErrorf(err)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = kctx.Run(&app{ctx: ctx, logger: logger, out: os.Stdout})
	kctx.FatalIfErrorf(err)
}

// RunCmd runs the simulated receiver pipeline with the controller in the loop.
type RunCmd struct {
	BurstControl bool `name:"burst-control" env:"AGC_BURST_CONTROL" default:"true" negatable:"" help:"Lower gain when loud bursts fail to decode."`
	RangeControl bool `name:"range-control" env:"AGC_RANGE_CONTROL" default:"true" negatable:"" help:"Probe for the highest gain that keeps the dynamic range target."`

	SampleRate float64 `name:"sample-rate" env:"AGC_SAMPLE_RATE" default:"${sample_rate}" help:"Sample rate in Hz."`
	DutyCycle  float64 `name:"duty-cycle" env:"AGC_DUTY_CYCLE" default:"${duty_cycle}" help:"Fraction of subblocks inspected (0..1]."`
	MinGain    float64 `name:"min-gain" env:"AGC_MIN_GAIN" default:"${min_gain}" help:"Lowest gain the controller may select, dB."`
	MaxGain    float64 `name:"max-gain" env:"AGC_MAX_GAIN" default:"${max_gain}" help:"Highest gain the controller may select, dB."`

	RangeTarget      float64 `name:"range-target" env:"AGC_RANGE_TARGET" default:"${range_target}" help:"Required dynamic range above the noise floor, dB."`
	RangePercentile  int     `name:"range-percentile" env:"AGC_RANGE_PERCENTILE" default:"${range_percentile}" help:"Magnitude percentile taken as the noise floor."`
	RangeAlpha       float64 `name:"range-alpha" env:"AGC_RANGE_ALPHA" default:"${range_alpha}" help:"Smoothing factor for the noise floor."`
	RangeChangeDelay int     `name:"range-change-delay" env:"AGC_RANGE_CHANGE_DELAY" default:"${range_change_delay}" help:"Blocks to wait after a gain change before range control acts."`
	RangeRescanDelay int     `name:"range-rescan-delay" env:"AGC_RANGE_RESCAN_DELAY" default:"${range_rescan_delay}" help:"Blocks between periodic upward rescans."`

	BurstAlpha          float64 `name:"burst-alpha" env:"AGC_BURST_ALPHA" default:"${burst_alpha}" help:"Smoothing factor for burst rates."`
	BurstLoudRate       float64 `name:"burst-loud-rate" env:"AGC_BURST_LOUD_RATE" default:"${burst_loud_rate}" help:"Loud undecoded bursts per block that mark a block loud."`
	BurstQuietRate      float64 `name:"burst-quiet-rate" env:"AGC_BURST_QUIET_RATE" default:"${burst_quiet_rate}" help:"Loud decodes per block below which a block is quiet."`
	BurstLoudRunlength  int     `name:"burst-loud-runlength" env:"AGC_BURST_LOUD_RUNLENGTH" default:"${burst_loud_runlength}" help:"Consecutive loud blocks before reducing gain."`
	BurstQuietRunlength int     `name:"burst-quiet-runlength" env:"AGC_BURST_QUIET_RUNLENGTH" default:"${burst_quiet_runlength}" help:"Consecutive quiet blocks before raising gain."`
	BurstChangeDelay    int     `name:"burst-change-delay" env:"AGC_BURST_CHANGE_DELAY" default:"${burst_change_delay}" help:"Blocks to wait after a gain change before burst control acts."`

	Gain        float64       `name:"gain" env:"AGC_GAIN" default:"49.6" help:"Initial simulated gain, dB."`
	MessageRate float64       `name:"message-rate" env:"AGC_MESSAGE_RATE" default:"200" help:"Simulated messages per second."`
	LoudestDBFS float64       `name:"loudest-dbfs" env:"AGC_LOUDEST_DBFS" default:"-25" help:"Antenna-referred level of the loudest simulated message."`
	Seed        int64         `name:"seed" env:"AGC_SEED" default:"1" help:"Simulator random seed."`
	Realtime    bool          `name:"realtime" env:"AGC_REALTIME" default:"true" negatable:"" help:"Pace the simulator at the sample rate."`
	Duration    time.Duration `name:"duration" env:"AGC_DURATION" default:"0s" help:"Stop after this long; 0 runs until interrupted."`

	Web     string `name:"web" env:"AGC_WEB_ADDR" default:":8080" help:"Telemetry listen address; empty disables the web server."`
	History int    `name:"history" env:"AGC_HISTORY" default:"3600" help:"Gain reports kept for /api/history."`
	Stdout  bool   `name:"stdout" env:"AGC_STDOUT" help:"Log every gain report."`
}

func (r *RunCmd) agcConfig() agc.Config {
	return agc.Config{
		SampleRate:          r.SampleRate,
		BurstControl:        r.BurstControl,
		RangeControl:        r.RangeControl,
		DutyCycle:           r.DutyCycle,
		MinGainDB:           r.MinGain,
		MaxGainDB:           r.MaxGain,
		RangeTargetDB:       r.RangeTarget,
		RangePercentile:     r.RangePercentile,
		RangeAlpha:          r.RangeAlpha,
		RangeChangeDelay:    r.RangeChangeDelay,
		RangeRescanDelay:    r.RangeRescanDelay,
		BurstAlpha:          r.BurstAlpha,
		BurstLoudRate:       r.BurstLoudRate,
		BurstQuietRate:      r.BurstQuietRate,
		BurstLoudRunlength:  r.BurstLoudRunlength,
		BurstQuietRunlength: r.BurstQuietRunlength,
		BurstChangeDelay:    r.BurstChangeDelay,
	}
}

func (r *RunCmd) simConfig() sdr.SimConfig {
	cfg := sdr.DefaultSimConfig()
	cfg.SampleRate = r.SampleRate
	cfg.InitialGainDB = r.Gain
	cfg.MessageRate = r.MessageRate
	cfg.MaxMessageDBFS = r.LoudestDBFS
	cfg.Seed = r.Seed
	return cfg
}

func (r *RunCmd) Run(a *app) error {
	ctx := a.ctx
	if r.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Duration)
		defer cancel()
	}

	simCfg := r.simConfig()
	sim := sdr.NewSimulator(simCfg)
	defer sim.Close()

	hub := telemetry.NewHub(r.History, a.logger)
	reporters := telemetry.MultiReporter{hub}
	if r.Stdout {
		reporters = append(reporters, telemetry.NewStdoutReporter(a.logger))
	}
	if r.Web != "" {
		web := telemetry.NewWebServer(r.Web, hub, a.logger)
		go func() {
			if err := web.Start(ctx); err != nil {
				a.logger.Error("web telemetry server error", logging.F("error", err.Error()))
			}
		}()
	}

	ctrl := agc.NewController(sim, dsp.CountAbove, reporters, a.logger, r.agcConfig())

	var interval time.Duration
	if r.Realtime {
		interval = time.Duration(float64(simCfg.NumSamples) / simCfg.SampleRate * float64(time.Second))
	}
	pipe := receiver.New(sim, ctrl, receiver.NewPulseDecoder(simCfg.SampleRate, receiver.DefaultDecoderConfig()), a.logger, receiver.Config{Interval: interval})

	a.logger.Info("receiver starting",
		logging.F("sample_rate", simCfg.SampleRate),
		logging.F("gain_db", sim.GainDB(sim.Gain())),
		logging.F("adaptive", ctrl.Enabled()))
	if err := pipe.Run(ctx); err != nil {
		return fmt.Errorf("run receiver: %w", err)
	}

	st := pipe.Stats()
	sum := telemetry.Summarize(ctrl.LastReport())
	a.logger.Info("receiver stopped",
		logging.F("buffers", st.Buffers),
		logging.F("decoded", st.Decoded),
		logging.F("undecoded", st.Undecoded),
		logging.F("gain_db", sim.GainDB(sim.Gain())),
		logging.F("median_gain_db", sum.MedianGainDB),
		logging.F("gain_changes", sum.GainChanges))
	return nil
}
