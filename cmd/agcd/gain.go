package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rjboer/sdragc/internal/logging"
	"github.com/rjboer/sdragc/internal/mdns"
	"github.com/rjboer/sdragc/internal/sdr"
)

// PlutoFlags locate and authenticate against a Pluto.
type PlutoFlags struct {
	Host     string        `name:"host" env:"AGC_PLUTO_HOST" help:"Pluto address; empty discovers one over mDNS."`
	User     string        `name:"user" env:"AGC_PLUTO_USER" default:"root" help:"SSH user."`
	Password string        `name:"password" env:"AGC_PLUTO_PASSWORD" default:"analog" help:"SSH password."`
	Key      string        `name:"key" env:"AGC_PLUTO_KEY" type:"path" help:"SSH private key."`
	Port     int           `name:"port" env:"AGC_PLUTO_PORT" default:"22" help:"SSH port."`
	Retries  uint64        `name:"retries" env:"AGC_PLUTO_RETRIES" default:"3" help:"SSH reconnect attempts."`
	Timeout  time.Duration `name:"timeout" env:"AGC_PLUTO_TIMEOUT" default:"10s" help:"Overall operation timeout."`
}

// discoverFunc is replaced in tests.
var discoverFunc = mdns.Discover

func (p PlutoFlags) resolveHost(ctx context.Context, logger logging.Logger) (string, error) {
	if p.Host != "" {
		return p.Host, nil
	}
	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	hosts, err := discoverFunc(dctx, mdns.IIODService)
	if err != nil {
		return "", fmt.Errorf("discover pluto: %w", err)
	}
	if len(hosts) == 0 {
		return "", fmt.Errorf("no pluto found over mDNS; pass --host")
	}
	addr := hosts[0].Address()
	logger.Info("using discovered radio", logging.F("instance", hosts[0].Instance), logging.F("addr", addr))
	return addr, nil
}

func (p PlutoFlags) open(ctx context.Context, logger logging.Logger) (*sdr.PlutoGain, func() error, error) {
	host, err := p.resolveHost(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	attrs, err := sdr.NewSSHAttributeIO(sdr.SSHConfig{
		Host:        host,
		User:        p.User,
		Password:    p.Password,
		KeyPath:     p.Key,
		Port:        p.Port,
		DialRetries: p.Retries,
	})
	if err != nil {
		return nil, nil, err
	}
	gain, err := sdr.NewPlutoGain(ctx, attrs)
	if err != nil {
		attrs.Close()
		return nil, nil, fmt.Errorf("open pluto gain on %s: %w", host, err)
	}
	return gain, attrs.Close, nil
}

// GainCmd groups the gain subcommands.
type GainCmd struct {
	Get GainGetCmd `cmd:"" help:"Print the current receive gain."`
	Set GainSetCmd `cmd:"" help:"Set the receive gain to the nearest supported value."`
}

type GainGetCmd struct {
	PlutoFlags `embed:""`
}

func (g *GainGetCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(a.ctx, g.Timeout)
	defer cancel()

	gain, closeFn, err := g.open(ctx, a.logger)
	if err != nil {
		return err
	}
	defer closeFn()

	step := gain.Gain()
	fmt.Fprintf(a.out, "gain step %d of %d: %.1f dB\n", step, gain.MaxGain(), gain.GainDB(step))
	return nil
}

type GainSetCmd struct {
	PlutoFlags `embed:""`
	DB         float64 `arg:"" name:"db" help:"Requested gain in dB."`
}

func (g *GainSetCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(a.ctx, g.Timeout)
	defer cancel()

	gain, closeFn, err := g.open(ctx, a.logger)
	if err != nil {
		return err
	}
	defer closeFn()

	from := gain.Gain()
	to, err := gain.SetGain(sdr.StepForDB(gain, g.DB))
	if err != nil {
		return fmt.Errorf("set gain: %w", err)
	}
	a.logger.Info("changing gain",
		logging.F("from_db", gain.GainDB(from)),
		logging.F("to_db", gain.GainDB(to)),
		logging.F("reason", "manual"))
	fmt.Fprintf(a.out, "gain step %d of %d: %.1f dB\n", to, gain.MaxGain(), gain.GainDB(to))
	return nil
}

// DiscoverCmd lists radios advertising a service over mDNS.
type DiscoverCmd struct {
	Service string        `name:"service" default:"_iio._tcp" help:"DNS-SD service type."`
	Timeout time.Duration `name:"timeout" default:"3s" help:"How long to listen."`
}

func (d *DiscoverCmd) Run(a *app) error {
	ctx, cancel := context.WithTimeout(a.ctx, d.Timeout)
	defer cancel()

	hosts, err := discoverFunc(ctx, d.Service)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		fmt.Fprintln(a.out, "no radios found")
		return nil
	}
	for _, h := range hosts {
		fmt.Fprintf(a.out, "%s\t%s\t%s:%d\n", h.Instance, h.Hostname, h.Address(), h.Port)
	}
	return nil
}
