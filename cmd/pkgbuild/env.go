package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/build"
	"github.com/buckos/pkgbuild/internal/config"
	"github.com/buckos/pkgbuild/internal/log"
)

var (
	envRequest requestFlags
	envJSON    bool
)

var envCmd = &cobra.Command{
	Use:   "env <request>",
	Short: "Print the composed build environment",
	Long: `Compose the build environment for a request and print it without
running any phase. Variables are printed as KEY=value lines sorted by name.

Examples:
  pkgbuild env zlib.toml
  pkgbuild env --stage stage3 --root /stage2/image zlib.toml --json`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		req, err := envRequest.loadRequest(args[0])
		if err != nil {
			return err
		}
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate pkgbuild executable: %w", err)
		}
		plan, err := build.New(settings, build.WithLogger(log.Default()), build.WithSelf(self)).Prepare(cmd.Context(), req)
		if err != nil {
			return err
		}

		if envJSON {
			return printJSON(struct {
				Stage     string            `json:"stage"`
				Triple    string            `json:"triple,omitempty"`
				Sysroot   string            `json:"sysroot,omitempty"`
				Path      []string          `json:"path"`
				Variables map[string]string `json:"variables"`
			}{
				Stage:     req.Stage.String(),
				Triple:    plan.Toolchain.Triple,
				Sysroot:   plan.Env.Sysroot,
				Path:      plan.Env.Path,
				Variables: plan.Env.Variables.Map(),
			})
		}
		for _, kv := range plan.Env.Environ() {
			fmt.Println(kv)
		}
		return nil
	},
}

func init() {
	envRequest.register(envCmd)
	envCmd.Flags().BoolVar(&envJSON, "json", false, "Print as JSON")
}
