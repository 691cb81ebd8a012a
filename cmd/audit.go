package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List the administrative audit trail",
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

		entries, err := st.ListAudit(ctx, auditLimit)
		if err != nil {
			return eris.Wrap(err, "audit list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Audit log is empty.")
			return nil
		}

		formatAudit(os.Stdout, entries)
		return nil
	},
}

// formatAudit writes the audit trail as a table.
func formatAudit(out io.Writer, entries []model.AuditEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AT\tACTOR\tACTION\tSUBJECT\tDETAIL")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-------\t------")

	for _, e := range entries {
		detail := ""
		if len(e.Detail) > 0 {
			if b, err := json.Marshal(e.Detail); err == nil {
				detail = string(b)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.At.Format("2006-01-02 15:04:05"),
			e.Actor,
			e.Action,
			truncateID(e.Subject),
			detail,
		)
	}
	_ = w.Flush()
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "max entries to display")
	rootCmd.AddCommand(auditCmd)
}
