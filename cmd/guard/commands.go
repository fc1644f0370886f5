package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/review"
)

var (
	classifyJSON bool
	reportOut    string
	submitAll    bool
	submitFile   string
)

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "List rounds with more than 10 contributors, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := eng.Rounds(cmd.Context())
		if err != nil {
			return err
		}
		now := time.Now()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTART\tEND\tCONTRIBUTORS\tSTATUS")
		for _, r := range rs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name,
				r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly),
				r.UniqueContributors, r.LifecycleAt(now))
		}
		return tw.Flush()
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Refresh the cluster and recycling snapshots of an active round",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := selectRound(cmd.Context()); err != nil {
			return err
		}
		rep, err := eng.Detect(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "run %s: %d cluster groups, %d recycling grantees, %d flagged, state %s\n",
			rep.RunID, len(rep.Groups), len(rep.Recycle), rep.Flagged, rep.State)
		for _, g := range rep.Groups {
			fmt.Fprintf(w, "  %s: %d members\n", g.Name(), len(g.Members))
		}
		for _, f := range rep.Failed {
			fmt.Fprintf(w, "  failed %s after %d attempts: %s\n", f.Key, f.Attempts, f.Message)
		}
		for _, s := range rep.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", s)
		}
		return nil
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label every voter of a round",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := selectRound(cmd.Context()); err != nil {
			return err
		}
		res, err := eng.Classify(cmd.Context())
		if err != nil && !res.Degraded {
			return err
		}
		w := cmd.OutOrStdout()
		if classifyJSON {
			return writeJSON(w, res.Votes)
		}
		counts := res.Counts()
		for _, t := range model.AllThreatTypes {
			fmt.Fprintf(w, "%-20s %d\n", t, counts[t])
		}
		for _, s := range res.Warnings {
			fmt.Fprintf(w, "warning: %s\n", s)
		}
		return err
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Detections, threat donations and per-project threats as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := selectRound(cmd.Context()); err != nil {
			return err
		}
		s, err := eng.Summary(cmd.Context())
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), s)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the flagged voters CSV (voter,Threat Type)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := selectRound(cmd.Context()); err != nil {
			return err
		}
		if reportOut == "" {
			return eng.Report(cmd.Context(), cmd.OutOrStdout())
		}
		f, err := os.Create(reportOut)
		if err != nil {
			return err
		}
		if err := eng.Report(cmd.Context(), f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Move a round's flagged addresses through review",
}

var reviewStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the review state of a round",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := selectRound(cmd.Context()); err != nil {
			return err
		}
		rec, err := eng.ReviewState(cmd.Context())
		if err != nil {
			return err
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

var reviewBeginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Flagged -> UnderReview",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := selectRound(cmd.Context()); err != nil {
			return err
		}
		rec, err := eng.BeginReview(cmd.Context())
		if err != nil {
			return err
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

var reviewSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "UnderReview -> Submitted, committing addresses to the registry",
	Long: `Commit the round's flagged addresses to the threat registry.

  --all          every address this round's detectors flagged, with the
                 detector's threat type; addresses already in the registry
                 as Old keep their row
  --file <csv>   only the rows of a reviewed CSV (address or voter column,
                 optional threat type column; blank types become "Threats",
                 rows marked Normal are skipped)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkSubmitFlags(submitAll, submitFile); err != nil {
			return err
		}
		if err := selectRound(cmd.Context()); err != nil {
			return err
		}
		var (
			rec review.Record
			err error
		)
		if submitAll {
			rec, err = eng.SubmitAll(cmd.Context())
		} else {
			f, ferr := os.Open(submitFile)
			if ferr != nil {
				return ferr
			}
			defer f.Close()
			rec, err = eng.SubmitReviewed(cmd.Context(), f)
		}
		if err != nil {
			return err
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

var reviewClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Submitted -> Cleared, once the round has ended",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := selectRound(cmd.Context()); err != nil {
			return err
		}
		rec, err := eng.ClearReview(cmd.Context())
		if errors.Is(err, model.ErrClearWhileActive) {
			return fmt.Errorf("%w; download the report with `guard report` instead", err)
		}
		if err != nil {
			return err
		}
		return printRecord(cmd.OutOrStdout(), rec)
	},
}

func checkSubmitFlags(all bool, file string) error {
	switch {
	case all && file != "":
		return errors.New("use either --all or --file, not both")
	case !all && file == "":
		return errors.New("one of --all or --file is required")
	}
	return nil
}

func printRecord(w io.Writer, rec review.Record) error {
	fmt.Fprintf(w, "round %s: %s (flagged %d", rec.Round, rec.State, rec.Flagged)
	if rec.Mode != "" {
		fmt.Fprintf(w, ", submitted %d via %s", rec.Submitted, rec.Mode)
	}
	_, err := fmt.Fprintln(w, ")")
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func commandNames(c *cobra.Command) []string {
	var out []string
	for _, sub := range c.Commands() {
		out = append(out, sub.Name())
	}
	sort.Strings(out)
	return out
}
