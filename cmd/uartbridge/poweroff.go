package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/uartbridge/board"
	"github.com/mklimuk/uartbridge/cmd/uartbridge/console"
	"github.com/mklimuk/uartbridge/link"
)

var poweroffCmd = cli.Command{
	Name:  "poweroff",
	Usage: "tell the power board to cut the supply",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm("power off the system?")
			if err != nil {
				return console.Exit(console.ExitFailure, "prompt error: %s", console.Red(err))
			}
			if !ok {
				return nil
			}
		}

		ctx := commandContext(c)
		simulate := c.Bool("simulate")
		// the attached bridge may be using the port, so the exchange goes out
		// under the device lock instead of through a mailbox
		lock := locker(cfg, simulate)
		if lock != nil {
			defer func() {
				_ = lock.Close()
			}()
			err = lock.Lock()
			if err != nil {
				return console.Exit(console.ExitDevice, "%s", console.Red(err))
			}
			defer func() {
				_ = lock.Unlock()
			}()
		}
		t, closePort, err := openLink(ctx, cfg, simulate)
		if err != nil {
			return err
		}
		defer func() {
			_ = closePort()
		}()
		err = board.PowerOff(ctx, link.NewDirect(t))
		if err != nil {
			return console.Exit(console.ExitDevice, "power off failed: %s", console.Red(err))
		}
		console.PInfof(console.PictoStop, "power off requested")
		return nil
	},
}
