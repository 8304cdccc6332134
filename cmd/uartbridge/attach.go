package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/uartbridge/agent"
	"github.com/mklimuk/uartbridge/board"
	"github.com/mklimuk/uartbridge/cmd/uartbridge/console"
	"github.com/mklimuk/uartbridge/config"
	"github.com/mklimuk/uartbridge/mailbox"
)

var attachCmd = cli.Command{
	Name:  "attach",
	Usage: "run the bridge until terminated",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "proxy-device",
			Usage: "serve a kernel i2c proxy character device instead of the in-process mailbox",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt, syscall.SIGTERM)
		defer stop()

		simulate := c.Bool("simulate")
		t, closePort, err := openLink(ctx, cfg, simulate)
		if err != nil {
			return err
		}
		defer func() {
			_ = closePort()
		}()
		var opts []agent.Option
		if lock := locker(cfg, simulate); lock != nil {
			defer func() {
				_ = lock.Close()
			}()
			opts = append(opts, agent.WithLocker(lock))
		}

		var a *agent.Agent
		proxy := c.String("proxy-device")
		if proxy == "" {
			proxy = cfg.ProxyDevice
		}
		if proxy != "" {
			f, err := os.OpenFile(proxy, os.O_RDWR, 0)
			if err != nil {
				return console.Exit(console.ExitDevice, "could not open proxy device: %s", console.Red(err))
			}
			// a blocked read on the device only returns once the file is closed
			go func() {
				<-ctx.Done()
				_ = f.Close()
			}()
			a = agent.New(agent.NewStreamSource(f, cfg.Mailbox.Capacity), t, opts...)
		} else {
			mb := mailbox.New(cfg.Mailbox)
			a = agent.New(mb, t, opts...)
			go probeBoards(ctx, mb, cfg.Boards)
		}

		console.PInfof(console.PictoPlug, "bridge attached to %s", console.White(cfg.Serial.Device))
		err = a.Run(ctx)
		if err != nil {
			return console.Exit(console.ExitDevice, "bridge stopped: %s", console.Red(err))
		}
		console.PInfof(console.PictoStop, "bridge detached")
		return nil
	},
}

// probeBoards reads the version of every configured board once.
func probeBoards(ctx context.Context, mb *mailbox.Mailbox, boards config.Boards) {
	for name, addr := range map[string]uint16{"mobo": boards.Mobo, "power": boards.Power} {
		v, err := board.Probe(ctx, board.NewClient(mb, addr))
		if err != nil {
			slog.Warn("board did not answer", "board", name, "addr", fmt.Sprintf("0x%02x", addr), "error", err)
			continue
		}
		slog.Info("board found", "board", name, "addr", fmt.Sprintf("0x%02x", addr), "version", v)
	}
}
