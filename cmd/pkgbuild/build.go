package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/build"
	"github.com/buckos/pkgbuild/internal/log"
)

var (
	buildSettings    settingsFlags
	buildRequest     requestFlags
	buildNoIsolation bool
	buildJSON        bool
)

var buildCmd = &cobra.Command{
	Use:   "build <request>",
	Short: "Build a package from a request file",
	Long: `Build a package from a TOML or YAML request file.

The build environment is composed from the dependency roots for the
request's stage, sources are fetched and unpacked into the work directory,
then the phases run in order. The installed image is verified and a
provenance lineage is written into it.

Examples:
  pkgbuild build zlib.toml
  pkgbuild build --stage stage2 --root /bootstrap/toolchain --root /bootstrap/glibc zlib.toml
  pkgbuild build --contamination strict coreutils.yaml`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := buildSettings.loadSettings(cmd)
		if err != nil {
			return err
		}
		req, err := buildRequest.loadRequest(args[0])
		if err != nil {
			return err
		}

		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to locate pkgbuild executable: %w", err)
		}
		opts := []build.Option{
			build.WithLogger(log.Default()),
			build.WithSelf(self),
			build.WithIsolationDisabled(buildNoIsolation),
		}
		if !quietFlag {
			opts = append(opts, build.WithOutput(os.Stdout, os.Stderr))
		}

		out, err := build.New(settings, opts...).Build(cmd.Context(), req)
		if err != nil {
			return err
		}
		if buildJSON {
			return printJSON(summarize(out))
		}
		printInfof("Built %s-%s (%s): %d files, %d directories\n",
			req.Name, req.Version, req.Stage, out.Report.FileCount, out.Report.DirCount)
		if n := len(out.Report.Contamination); n > 0 {
			printInfof("  %d contamination finding(s), see %s/logs/%s\n", n, req.WorkDir, build.ReportFile)
		}
		printInfof("  content hash %s\n", out.Provenance.Record.ContentHash)
		return nil
	},
}

type buildSummary struct {
	Package       string `json:"package"`
	Version       string `json:"version"`
	Stage         string `json:"stage"`
	Dest          string `json:"dest"`
	FileCount     int    `json:"fileCount"`
	DirCount      int    `json:"dirCount"`
	Contamination int    `json:"contamination"`
	ContentHash   string `json:"contentHash"`
	SubgraphHash  string `json:"subgraphHash"`
	Stamped       int    `json:"stamped"`
}

func summarize(out *build.Outcome) buildSummary {
	req := out.Plan.Request
	return buildSummary{
		Package:       req.Name,
		Version:       req.Version,
		Stage:         req.Stage.String(),
		Dest:          req.Dest,
		FileCount:     out.Report.FileCount,
		DirCount:      out.Report.DirCount,
		Contamination: len(out.Report.Contamination),
		ContentHash:   out.Provenance.Record.ContentHash,
		SubgraphHash:  out.Provenance.SubgraphHash,
		Stamped:       out.Provenance.Stamped,
	}
}

func init() {
	buildSettings.register(buildCmd)
	buildRequest.register(buildCmd)
	buildCmd.Flags().BoolVar(&buildNoIsolation, "no-isolation", false, "Run phases without network namespaces")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "Print a JSON summary")
}
