package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/uartbridge/board"
	"github.com/mklimuk/uartbridge/cmd/uartbridge/console"
)

type probeResult struct {
	Addr      string          `yaml:"addr"`
	Version   *byte           `yaml:"version,omitempty"`
	Registers map[string]byte `yaml:"registers,omitempty"`
	Error     string          `yaml:"error,omitempty"`
}

var probeCmd = cli.Command{
	Name:  "probe",
	Usage: "read version registers of the satellite boards",
	Flags: []cli.Flag{
		hostBusFlag,
		&cli.BoolFlag{
			Name:  "all",
			Usage: "dump every register",
		},
	},
	Action: func(c *cli.Context) error {
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

		ctx := commandContext(c)
		boards := []struct {
			name string
			addr uint16
			regs []board.Register
		}{
			{"mobo", cfg.Boards.Mobo, board.MoboRegisters},
			{"power", cfg.Boards.Power, board.PowerRegisters},
		}
		out := make(map[string]probeResult, len(boards))
		failed := 0
		for _, b := range boards {
			res := probeResult{Addr: fmt.Sprintf("0x%02x", b.addr)}
			client := board.NewClient(tx, b.addr)
			v, err := board.Probe(ctx, client)
			if err == nil {
				res.Version = &v
				if c.Bool("all") {
					res.Registers, err = board.Dump(ctx, client, b.regs)
				}
			}
			if err != nil {
				res.Error = err.Error()
				failed++
			}
			out[b.name] = res
		}
		enc := yaml.NewEncoder(console.Writer())
		err = enc.Encode(out)
		if err != nil {
			return console.Exit(console.ExitFailure, "encoding error: %s", console.Red(err))
		}
		if failed > 0 {
			return console.Exit(console.ExitFailure, "%d boards did not answer", failed)
		}
		return nil
	},
}
