package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/depscan"
	"github.com/buckos/pkgbuild/internal/log"
	"github.com/buckos/pkgbuild/internal/platform"
	"github.com/buckos/pkgbuild/internal/stage"
	"github.com/buckos/pkgbuild/internal/toolchain"
)

var (
	detectStage       string
	detectRoots       []string
	detectBuildTriple string
	detectJSON        bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show toolchain detection for a set of dependency roots",
	Long: `Scan dependency roots for cross and native toolchains, sysroots and C++
headers, then show what would be selected for the given stage.

Examples:
  pkgbuild detect --root /bootstrap/toolchain
  pkgbuild detect --stage stage2 --root /bootstrap/toolchain --root /bootstrap/glibc`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := stage.Parse(detectStage)
		if err != nil {
			return &usageError{err: err}
		}
		logger := log.Default()
		snap := depscan.LoadSnapshot(detectRoots, logger)
		det := toolchain.Detect(snap)

		triple := detectBuildTriple
		if triple == "" {
			triple = platform.HostTriple()
		}
		sel, selErr := toolchain.Select(st, det, toolchain.Options{HostTriple: triple, Logger: logger})

		if detectJSON {
			out := struct {
				Stage     string                     `json:"stage"`
				Detection *toolchain.DetectionResult `json:"detection"`
				Selection *toolchain.Selection       `json:"selection,omitempty"`
				Error     string                     `json:"error,omitempty"`
			}{Stage: st.String(), Detection: det, Selection: sel}
			if selErr != nil {
				out.Error = selErr.Error()
			}
			if err := printJSON(out); err != nil {
				return err
			}
			return selErr
		}

		fmt.Printf("Roots (%d):\n", len(det.Roots))
		for _, r := range det.Roots {
			fmt.Printf("  %s\n", r)
		}
		if len(det.Cross) > 0 {
			fmt.Println("\nCross toolchains:")
			for _, c := range det.Cross {
				fmt.Printf("  %-32s %s (%s)\n", c.Triple, c.BinDir, toolList(c.Tools))
			}
		}
		if len(det.Native) > 0 {
			fmt.Println("\nNative toolchains:")
			for _, n := range det.Native {
				fmt.Printf("  %s (%s)\n", n.BinDir, toolList(n.Tools))
			}
		}
		if len(det.Sysroots) > 0 {
			fmt.Println("\nSysroots:")
			for _, s := range det.Sysroots {
				kind := "flat"
				if s.Nested {
					kind = "nested"
				}
				fmt.Printf("  %s (%s)\n", s.Path, kind)
			}
		}
		if selErr != nil {
			return selErr
		}

		fmt.Printf("\nSelected for %s:\n", st)
		if sel.Triple != "" {
			fmt.Printf("  triple   %s\n", sel.Triple)
		}
		if sel.Sysroot != "" {
			fmt.Printf("  sysroot  %s\n", sel.Sysroot)
		}
		for _, kv := range sel.Binaries.Vars() {
			fmt.Printf("  %-8s %s\n", kv[0], kv[1])
		}
		if len(sel.HeaderFlags) > 0 {
			fmt.Printf("  headers  %s\n", strings.Join(sel.HeaderFlags, " "))
		}
		return nil
	},
}

func toolList(tools map[string]bool) string {
	names := make([]string, 0, len(tools))
	for t := range tools {
		names = append(names, t)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func init() {
	detectCmd.Flags().StringVar(&detectStage, "stage", "", "Stage to select for (default none)")
	detectCmd.Flags().StringArrayVar(&detectRoots, "root", nil, "Dependency root, in priority order (repeatable)")
	detectCmd.Flags().StringVar(&detectBuildTriple, "build-triple", "", "Build machine triple (default: detected)")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Print as JSON")
}
