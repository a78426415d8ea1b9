package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolharvest/internal/output"
)

func init() {
	rootCmd.AddCommand(runCmd, discoverCmd, extractCmd, normalizeCmd, reconcileCmd, reportCmd, verifyCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs discovery, extraction, normalization, category reconciliation and the report.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}

		rt.log.Info("🚀 Starting harvest", "listing", rt.cfg.Source.ListingURL)

		return rt.finish(newPipeline(rt, cmd.OutOrStdout()).runAll(cmd.Context()))
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Crawls the listing page and writes discovery.json.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}

		client, session, err := newCrawler(cmd.Context(), rt)
		if err != nil {
			return err
		}
		defer session.Close()

		return rt.finish(newPipeline(rt, cmd.OutOrStdout()).discover(cmd.Context(), client))
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Visits the detail page of every discovered tool and writes raw_tools.json.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}

		client, session, err := newCrawler(cmd.Context(), rt)
		if err != nil {
			return err
		}
		defer session.Close()

		err = newPipeline(rt, cmd.OutOrStdout()).extract(cmd.Context(), client)
		client.Tracker().LogVisitSummary(rt.log)

		return rt.finish(err)
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Cleans, deduplicates and filters raw_tools.json into tools.json.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}

		return rt.finish(newPipeline(rt, cmd.OutOrStdout()).normalize())
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Maps the categories of tools.json onto the authoritative category list.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}

		return rt.finish(newPipeline(rt, cmd.OutOrStdout()).reconcile(cmd.Context()))
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Renders report.md from the artifacts in the output directory.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}

		return rt.finish(newPipeline(rt, cmd.OutOrStdout()).report())
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-hashes the artifacts in the output directory against manifest.json.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := setup()
		if err != nil {
			return err
		}

		manifest, err := output.ReadManifest(rt.cfg.Output.Dir)
		if err != nil {
			return err
		}

		if err := manifest.Verify(rt.cfg.Output.Dir); err != nil {
			return fmt.Errorf("manifest verification failed: %w", err)
		}

		rows := make([][2]any, 0, len(manifest.Artifacts))
		for _, a := range manifest.Artifacts {
			rows = append(rows, [2]any{a.Name, a.Items})
		}

		printTable(cmd.OutOrStdout(), "Verified "+manifest.RunID, rows)
		rt.log.Info("✅ Manifest verified", "artifacts", len(manifest.Artifacts))

		return nil
	},
}
