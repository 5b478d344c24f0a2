package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"biastest/adapters/ledger"
	"biastest/internal/errors"

	"github.com/spf13/cobra"
)

func newLedgerCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage the SQL ledger schema",
	}

	open := func() (*ledger.Migrator, func(), error) {
		if e.cfg.Ledger.DSN == "" {
			return nil, nil, errors.ConfigInvalid("BIASTEST_LEDGER_DSN is not set")
		}
		db, err := ledger.Open(e.cfg.Ledger.DSN)
		if err != nil {
			return nil, nil, err
		}
		return ledger.NewMigrator(db, e.logger), func() { db.Close() }, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			return m.Up(cmd.Context())
		},
	}, &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, done, err := open()
			if err != nil {
				return err
			}
			defer done()
			states, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, s := range states {
				fmt.Fprintf(w, "%s\t%s\t%t\n", s.Version, s.Name, s.Applied)
			}
			return w.Flush()
		},
	})
	return cmd
}
