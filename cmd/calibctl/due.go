package main

import (
	"fmt"
	"time"

	"github.com/BearBump/CalibBox/internal/models"
	"github.com/BearBump/CalibBox/internal/services/equipment"
	"github.com/BearBump/CalibBox/internal/storage/memcalib"
	"github.com/BearBump/CalibBox/internal/storage/pgcalib"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func NewDueCommand(load configLoader) *cobra.Command {
	var (
		before string
		days   int
		limit  int
	)

	cmd := &cobra.Command{
		Use:     "due",
		GroupID: gLab,
		Short:   "List equipment due for calibration",
		Long: `List equipment whose next due date falls on or before a day, ordered by
due date. Overdue items are shown in red, the rest in yellow.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			today := models.CalendarDate(time.Now())
			until := today.AddDate(0, 0, days)
			if before != "" {
				if until, err = time.Parse(time.DateOnly, before); err != nil {
					return fmt.Errorf("--before must be YYYY-MM-DD: %w", err)
				}
			}

			var repo equipment.Repository
			if cfg.Database.Driver == "memory" {
				repo = memcalib.New()
			} else {
				st, err := pgcalib.New(cfg.Database.ConnString())
				if err != nil {
					return err
				}
				defer st.Close()
				repo = st
			}

			items, err := equipment.New(repo, nil, 0, nil, nil).ListDue(cmd.Context(), models.SystemActor, until, limit, 0)
			if err != nil {
				return err
			}

			cmd.Println(bold("Due on or before %s:", until.Format(time.DateOnly)))
			if len(items) == 0 {
				cmd.Println("  no equipment due")
				return nil
			}
			for _, e := range items {
				cmd.Println("  " + dueLine(e, today))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "last due day to include (YYYY-MM-DD)")
	cmd.Flags().IntVar(&days, "days", 30, "days ahead of today when --before is not set")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum rows")
	return cmd
}

func dueLine(e *models.Equipment, today time.Time) string {
	due := models.CalendarDate(*e.NextDueDate)
	c := color.New(color.FgYellow)
	label := fmt.Sprintf("in %d days", int(due.Sub(today).Hours()/24))
	if due.Before(today) {
		c = color.New(color.Bold, color.FgRed)
		label = fmt.Sprintf("overdue %d days", int(today.Sub(due).Hours()/24))
	}
	return fmt.Sprintf("%s  #%-6d %-20s %-24s owner=%d %s",
		c.Sprint(due.Format(time.DateOnly)), e.ID, e.SerialNumber, e.Name, e.OwnerID, c.Sprint(label))
}
