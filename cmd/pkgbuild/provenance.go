package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buckos/pkgbuild/internal/provenance"
)

var provenanceJSON bool

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "Inspect provenance recorded in an installed image",
}

var provenanceShowCmd = &cobra.Command{
	Use:   "show <dir>",
	Short: "List the lineage recorded in an image",
	Long: `List every record in the image's lineage file: the package itself first,
then its dependencies ordered by name and version.`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := provenance.ReadLineage(args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%s: %w", args[0], provenance.ErrNoLineage)
		}
		own := entries[0].Record
		deps := make([]provenance.Record, 0, len(entries)-1)
		for _, e := range entries[1:] {
			deps = append(deps, e.Record)
		}
		provenance.SortRecords(deps)

		if provenanceJSON {
			return printJSON(append([]provenance.Record{own}, deps...))
		}
		fmt.Printf("%s-%s %s\n", own.Name, own.Version, own.ContentHash)
		if own.SourceURL != "" {
			fmt.Printf("  source  %s\n", own.SourceURL)
		}
		if len(own.UseFlags) > 0 {
			fmt.Printf("  use     %v\n", own.UseFlags)
		}
		if len(deps) > 0 {
			fmt.Printf("\nDependencies (%d):\n", len(deps))
			for _, d := range deps {
				fmt.Printf("  %-24s %-16s %s\n", d.Name, d.Version, d.ContentHash)
			}
		}
		return nil
	},
}

var provenanceVerifyCmd = &cobra.Command{
	Use:   "verify <dir>",
	Short: "Recompute and check the recorded provenance hashes",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := provenance.Verify(args[0])
		var mismatch *provenance.MismatchError
		if errors.As(err, &mismatch) {
			fmt.Printf("FAIL %s\n", mismatch.Error())
			return &exitError{code: ExitVerifyFailed}
		}
		if err != nil {
			return err
		}
		printInfof("OK %s-%s %s\n", rec.Name, rec.Version, rec.ContentHash)
		return nil
	},
}

func init() {
	provenanceShowCmd.Flags().BoolVar(&provenanceJSON, "json", false, "Print records as JSON")
	provenanceCmd.AddCommand(provenanceShowCmd)
	provenanceCmd.AddCommand(provenanceVerifyCmd)
}
