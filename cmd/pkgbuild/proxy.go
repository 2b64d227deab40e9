package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/log"
	"github.com/buckos/pkgbuild/internal/pkgconfig"
)

// pkgConfigProxyCmd is what the pkg-config wrapper scripts in the work
// directory exec. Every argument belongs to pkg-config.
var pkgConfigProxyCmd = &cobra.Command{
	Use:                "pkg-config-proxy [pkg-config arguments]",
	Short:              "Run pkg-config and rewrite host paths into dependency roots",
	Hidden:             true,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &pkgconfig.Proxy{
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
			Logger: log.Default(),
		}
		if code := p.Run(cmd.Context(), args); code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}
