package cmd

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

type target struct {
	os, arch string
}

// targets are the hosts the bridge is deployed on. The binary is pure Go so
// every one of them cross-compiles without a C toolchain.
var targets = map[string]target{
	"native":  {runtime.GOOS, runtime.GOARCH},
	"pi":      {"linux", "arm64"},
	"pi-zero": {"linux", "arm"},
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the uartbridge binary",
		Long: fmt.Sprintf(`Build dist/uartbridge for one of the deployment targets (%s).

  dev build --target pi --version v0.2.0`, strings.Join(targetNames(), ", ")),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := cmd.Flags().GetString("target")
			if err != nil {
				return fmt.Errorf("could not get target flag: %w", err)
			}
			t, ok := targets[name]
			if !ok {
				return fmt.Errorf("unknown target %q, expected one of %s", name, strings.Join(targetNames(), ", "))
			}
			version, err := cmd.Flags().GetString("version")
			if err != nil {
				return fmt.Errorf("could not get version flag: %w", err)
			}
			output := "dist/uartbridge"
			if name != "native" {
				output = fmt.Sprintf("dist/uartbridge-%s-%s", t.os, t.arch)
			}
			return build.GoBuild(output, "./cmd/uartbridge", build.GoBuildOpts{
				Version:       version,
				InjectVersion: true,
				ConfigPackage: "github.com/mklimuk/uartbridge/config",
				Arch:          t.arch,
				OS:            t.os,
			})
		},
	}
	cmd.Flags().String("target", "native", "deployment target")
	cmd.Flags().String("version", "latest", "version injected into the binary")

	return cmd
}

func targetNames() []string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
