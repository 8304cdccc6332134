package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/uartbridge/board"
	"github.com/mklimuk/uartbridge/cmd/uartbridge/console"
)

var regCmd = cli.Command{
	Name:  "reg",
	Usage: "access board registers",
	Subcommands: cli.Commands{
		&regReadCmd,
		&regWriteCmd,
	},
}

var regReadCmd = cli.Command{
	Name:      "read",
	Usage:     "read registers starting at reg",
	ArgsUsage: "<addr> <reg> [len]",
	Flags:     []cli.Flag{hostBusFlag},
	Action: func(c *cli.Context) error {
		addr, reg, err := regArgs(c)
		if err != nil {
			return err
		}
		n := uint64(1)
		if c.NArg() > 2 {
			n, err = strconv.ParseUint(c.Args().Get(2), 0, 8)
			if err != nil || n == 0 {
				return console.Exit(console.ExitFailure, "invalid length %q", c.Args().Get(2))
			}
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		tx, closeTx, err := transactor(c, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = closeTx()
		}()
		data, err := board.NewClient(tx, addr).ReadRegister(commandContext(c), reg, int(n))
		if err != nil {
			return console.Exit(console.ExitFailure, "%s", console.Red(err))
		}
		console.Print(hex.EncodeToString(data))
		return nil
	},
}

var regWriteCmd = cli.Command{
	Name:      "write",
	Usage:     "write hex data to registers starting at reg",
	ArgsUsage: "<addr> <reg> <hex>",
	Flags:     []cli.Flag{hostBusFlag},
	Action: func(c *cli.Context) error {
		addr, reg, err := regArgs(c)
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(c.Args().Get(2))
		if err != nil || len(data) == 0 {
			return console.Exit(console.ExitFailure, "invalid data %q", c.Args().Get(2))
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		tx, closeTx, err := transactor(c, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = closeTx()
		}()
		err = board.NewClient(tx, addr).WriteRegister(commandContext(c), reg, data)
		if err != nil {
			return console.Exit(console.ExitFailure, "%s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "wrote %d bytes to 0x%02x:0x%02x", len(data), addr, reg)
		return nil
	},
}

func regArgs(c *cli.Context) (uint16, byte, error) {
	if c.NArg() < 2 {
		return 0, 0, console.Exit(console.ExitFailure, "usage: %s %s", c.Command.FullName(), c.Command.ArgsUsage)
	}
	addr, err := parseAddr(c.Args().Get(0))
	if err != nil {
		return 0, 0, console.Exit(console.ExitFailure, "%s", err)
	}
	reg, err := strconv.ParseUint(c.Args().Get(1), 0, 8)
	if err != nil {
		return 0, 0, console.Exit(console.ExitFailure, "invalid register %q", c.Args().Get(1))
	}
	return addr, byte(reg), nil
}

// parseAddr accepts 7 and 10 bit addresses in any Go integer notation.
func parseAddr(s string) (uint16, error) {
	addr, err := strconv.ParseUint(s, 0, 16)
	if err != nil || addr > 0x3ff {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(addr), nil
}
