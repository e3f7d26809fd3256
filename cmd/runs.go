package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect outreach run history",
	Long:  "Commands for listing, viewing and exporting outreach runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outreach runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		account, _ := cmd.Flags().GetString("account")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:    model.RunStatus(status),
			AccountID: account,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export run history to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		account, _ := cmd.Flags().GetString("account")
		limit, _ := cmd.Flags().GetInt("limit")
		out, _ := cmd.Flags().GetString("out")

		runs, err := st.ListRuns(ctx, store.RunFilter{AccountID: account, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs export")
		}

		if err := writeRunsWorkbook(out, runs); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d runs to %s\n", len(runs), out)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, retrieving, complete, failed, ...)")
	runsListCmd.Flags().String("account", "", "filter by account ID")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsExportCmd.Flags().String("account", "", "filter by account ID")
	runsExportCmd.Flags().Int("limit", 1000, "max number of runs to export")
	runsExportCmd.Flags().String("out", "runs.xlsx", "output file path")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tACCOUNT\tROLE\tSTATUS\tCONTACTS\tCREDITS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t----\t------\t--------\t-------\t-------\t--------")

	for _, r := range runs {
		contacts, credits := "-", "-"
		if r.Result != nil {
			contacts = strconv.Itoa(r.Result.ContactsReturned)
			credits = strconv.Itoa(r.Result.CreditsCharged)
		}

		role := r.Request.Role
		if len(role) > 30 {
			role = role[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Request.AccountID,
			role,
			r.Status,
			contacts,
			credits,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		)
	}
	_ = w.Flush()
}

// writeRunsWorkbook renders runs into a single-sheet xlsx file.
func writeRunsWorkbook(path string, runs []model.Run) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Runs")
	if err != nil {
		return eris.Wrap(err, "runs export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"ID", "Account", "Role", "Organization", "Location", "Status",
		"Requested", "Returned", "Drafts", "Credits", "Insufficient", "Error", "Created",
	} {
		header.AddCell().Value = h
	}

	for _, r := range runs {
		row := sheet.AddRow()
		row.AddCell().Value = r.ID
		row.AddCell().Value = r.Request.AccountID
		row.AddCell().Value = r.Request.Role
		row.AddCell().Value = r.Request.Organization
		row.AddCell().Value = r.Request.Location
		row.AddCell().Value = string(r.Status)

		if r.Result != nil {
			row.AddCell().SetInt(r.Result.ContactsRequested)
			row.AddCell().SetInt(r.Result.ContactsReturned)
			row.AddCell().SetInt(r.Result.DraftsCreated)
			row.AddCell().SetInt(r.Result.CreditsCharged)
			row.AddCell().SetBool(r.Result.InsufficientCredit)
			row.AddCell().Value = r.Result.Error
		} else {
			for i := 0; i < 6; i++ {
				row.AddCell()
			}
		}
		row.AddCell().Value = r.CreatedAt.Format(time.RFC3339)
	}

	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "runs export: save")
	}
	return nil
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
