package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/uartbridge/cmd/uartbridge/console"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		console.Printf("%s", data)
		return nil
	},
}
