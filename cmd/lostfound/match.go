package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erazemk/lostfound/internal/matching"
	"github.com/erazemk/lostfound/internal/notify"
	"github.com/erazemk/lostfound/internal/store"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "match <found-item-id>",
		Short: "Rank lost reports against a found item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			foundID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || foundID <= 0 {
				return fmt.Errorf("invalid found item id %q", args[0])
			}

			database, err := ctx.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			svc, err := buildServices(cmd.Context(), ctx.cfg, database, notify.Discard)
			if err != nil {
				return err
			}

			if record {
				recorded, err := svc.registry.FindCandidates(cmd.Context(), foundID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d tentative match(es).\n", len(recorded))
			}

			candidates, err := svc.registry.FindWeightedCandidates(cmd.Context(), foundID)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No candidates.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderCandidates(candidates))
			return nil
		},
	}

	cmd.Flags().BoolVar(&record, "record", false, "store top keyword-overlap candidates as tentative matches")
	return cmd
}

func newScoresCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scores",
		Short: "Score every found item against every lost report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := ctx.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			svc, err := buildServices(cmd.Context(), ctx.cfg, database, notify.Discard)
			if err != nil {
				return err
			}

			report, err := svc.registry.ScoreAllPairs(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(report))
			for _, entry := range report {
				best := "-"
				if len(entry.Matches) > 0 {
					top := entry.Matches[0]
					best = fmt.Sprintf("#%d %s (%d)", top.Item.ID, top.Item.Title, top.Confidence)
				}
				rows = append(rows, []string{
					strconv.FormatInt(entry.Found.ID, 10),
					entry.Found.Title,
					entry.Found.Status,
					strconv.Itoa(entry.TotalMatches),
					strconv.Itoa(entry.ConfirmedMatches),
					best,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Found item", "Status", "Matches", "Confirmed", "Best"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newReindexCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Re-extract keywords for every report with the current word lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := lockDatabase(ctx.cfg.Server.DBPath)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			database, err := ctx.openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			extractor, err := buildExtractor(ctx.cfg.Matching)
			if err != nil {
				return err
			}

			lost, err := store.ListLostItems(cmd.Context(), database, store.ItemFilter{})
			if err != nil {
				return err
			}
			for _, item := range lost {
				// Stored tokens are fed back in so client-supplied keywords survive.
				kw := extractor.Extract(item.Title, item.Description, strings.Join(item.Keywords.Sorted(), " "))
				if err := store.SetLostItemKeywords(cmd.Context(), database, item.ID, kw); err != nil {
					return err
				}
			}

			found, err := store.ListFoundItems(cmd.Context(), database, store.ItemFilter{})
			if err != nil {
				return err
			}
			for _, item := range found {
				kw := extractor.Extract(item.Title, item.Description, strings.Join(item.Keywords.Sorted(), " "))
				if err := store.SetFoundItemKeywords(cmd.Context(), database, item.ID, kw); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d lost and %d found reports.\n", len(lost), len(found))
			return nil
		},
	}
}

func renderCandidates(candidates []matching.Candidate) string {
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		confirmed := ""
		if c.Confirmed {
			confirmed = "yes"
		}
		rows = append(rows, []string{
			strconv.FormatInt(c.Item.ID, 10),
			c.Item.Title,
			c.Item.Category + " / " + c.Item.Subcategory,
			strconv.Itoa(c.Confidence),
			confirmed,
			c.Reason,
		})
	}
	return renderTable(
		[]string{"ID", "Lost item", "Category", "Score", "Confirmed", "Reason"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}
