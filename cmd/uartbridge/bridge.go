package main

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/uartbridge"
	"github.com/mklimuk/uartbridge/agent"
	"github.com/mklimuk/uartbridge/cmd/uartbridge/console"
	"github.com/mklimuk/uartbridge/config"
	"github.com/mklimuk/uartbridge/i2c"
	"github.com/mklimuk/uartbridge/link"
	"github.com/mklimuk/uartbridge/mailbox"
	"github.com/mklimuk/uartbridge/sim"
	"github.com/mklimuk/uartbridge/trace"
)

var hostBusFlag = &cli.StringFlag{
	Name:  "host-bus",
	Usage: "use a native host i2c bus instead of the bridge",
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, console.Exit(console.ExitConfig, "configuration error: %s", console.Red(err))
	}
	if dev := c.String("device"); dev != "" {
		cfg.Serial.Device = dev
	}
	return cfg, nil
}

func commandContext(c *cli.Context) context.Context {
	return trace.SetVerbose(c.Context, c.Bool("verbose"))
}

// openPort returns the serial port, or an emulator when simulating.
func openPort(cfg config.Config, simulate bool) (io.ReadWriter, func() error, error) {
	if simulate {
		slog.Info("using board emulator")
		return sim.NewBoard(), func() error { return nil }, nil
	}
	port, err := link.OpenSerial(cfg.Serial)
	if err != nil {
		return nil, nil, console.Exit(console.ExitDevice, "%s", console.Red(err))
	}
	return port, port.Close, nil
}

// openLink opens the port and brings the line into a known state.
func openLink(ctx context.Context, cfg config.Config, simulate bool) (*link.Transport, func() error, error) {
	port, closePort, err := openPort(cfg, simulate)
	if err != nil {
		return nil, nil, err
	}
	t := link.New(port, cfg.Link)
	err = t.Sync(ctx)
	if err != nil {
		_ = closePort()
		return nil, nil, console.Exit(console.ExitDevice, "could not sync link: %s", console.Red(err))
	}
	return t, closePort, nil
}

func locker(cfg config.Config, simulate bool) *link.FileLock {
	if simulate || !cfg.Lock {
		return nil
	}
	return link.NewFileLock(cfg.Serial.Device)
}

// bridge is an in-process mailbox served by an agent goroutine.
type bridge struct {
	mb     *mailbox.Mailbox
	stop   context.CancelFunc
	done   chan error
	lock   *link.FileLock
	closer func() error
}

func startBridge(ctx context.Context, cfg config.Config, simulate bool) (*bridge, error) {
	t, closePort, err := openLink(ctx, cfg, simulate)
	if err != nil {
		return nil, err
	}
	b := &bridge{
		mb:     mailbox.New(cfg.Mailbox),
		done:   make(chan error, 1),
		lock:   locker(cfg, simulate),
		closer: closePort,
	}
	var opts []agent.Option
	if b.lock != nil {
		opts = append(opts, agent.WithLocker(b.lock))
	}
	a := agent.New(b.mb, t, opts...)
	ctx, b.stop = context.WithCancel(ctx)
	go func() {
		b.done <- a.Run(ctx)
	}()
	return b, nil
}

func (b *bridge) Close() error {
	b.stop()
	err := <-b.done
	if b.lock != nil {
		err = errors.Join(err, b.lock.Close())
	}
	return errors.Join(err, b.closer())
}

// transactor returns what one-shot commands talk through: the bridge, or a
// host bus when --host-bus is given.
func transactor(c *cli.Context, cfg config.Config) (uartbridge.Transactor, func() error, error) {
	if name := c.String("host-bus"); name != "" {
		bus, err := i2c.NewGenericBus(name)
		if err != nil {
			return nil, nil, console.Exit(console.ExitDevice, "%s", console.Red(err))
		}
		return bus, bus.Close, nil
	}
	b, err := startBridge(commandContext(c), cfg, c.Bool("simulate"))
	if err != nil {
		return nil, nil, err
	}
	return b.mb, b.Close, nil
}
