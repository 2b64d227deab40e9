package main

import (
	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/build"
	"github.com/buckos/pkgbuild/internal/log"
	"github.com/buckos/pkgbuild/internal/request"
)

var (
	fetchSettings settingsFlags
	fetchJSON     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <request>...",
	Short: "Download and verify the sources of one or more requests",
	Long: `Fetch every source named in the given request files into the distfile
cache ($PKGBUILD_HOME/distfiles) without building. Backends are tried in the
configured order and every file is checked against its checksum.

Examples:
  pkgbuild fetch zlib.toml
  pkgbuild fetch --slots 8 requests/*.toml`,
	Args: usageArgs(cobra.MinimumNArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := fetchSettings.loadSettings(cmd)
		if err != nil {
			return err
		}
		f, err := build.NewFetcher(cmd.Context(), settings, log.Default())
		if err != nil {
			return err
		}

		type fetched struct {
			Package string `json:"package"`
			File    string `json:"file"`
			Path    string `json:"path"`
			Backend string `json:"backend"`
		}
		var all []fetched
		for _, path := range args {
			req, err := request.Load(path)
			if err != nil {
				return err
			}
			results, err := f.FetchAll(cmd.Context(), req.Sources)
			if err != nil {
				return err
			}
			for _, r := range results {
				all = append(all, fetched{Package: req.Name, File: r.Source.Name(), Path: r.Path, Backend: r.Backend})
			}
		}

		if fetchJSON {
			return printJSON(all)
		}
		for _, r := range all {
			printInfof("%-24s %-40s %s\n", r.Package, r.File, r.Backend)
		}
		return nil
	},
}

func init() {
	fetchSettings.register(fetchCmd)
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "Print results as JSON")
}
