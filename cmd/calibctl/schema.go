package main

import (
	"strings"

	"github.com/BearBump/CalibBox/internal/storage/pgcalib"
	"github.com/spf13/cobra"
)

func NewSchemaCommand(load configLoader) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:     "schema",
		GroupID: gSetup,
		Short:   "Print or apply the database schema",
		Long: `Print the DDL of the calibration store. With --apply the statements
are executed against the configured Postgres database (they are idempotent).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !apply {
				for _, stmt := range pgcalib.SchemaStatements() {
					cmd.Println(strings.TrimSpace(stmt) + ";")
					cmd.Println()
				}
				return nil
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			st, err := pgcalib.New(cfg.Database.ConnString())
			if err != nil {
				return err
			}
			defer st.Close()
			cmd.Println(ok("schema applied to %s/%s", cfg.Database.Host, cfg.Database.DBName))
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "execute the statements against the database")
	return cmd
}
