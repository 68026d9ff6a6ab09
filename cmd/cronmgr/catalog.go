package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	_const "github.com/TimeWtr/cron_manager/const"
	"github.com/TimeWtr/cron_manager/domain"
	"github.com/TimeWtr/cron_manager/repository"
	"github.com/TimeWtr/cron_manager/repository/dao"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	putCron        string
	putMethod      string
	putConcurrent  bool
	putDisabled    bool
	putDescription string
	logsLimit      int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage catalog rows",
	Long: `Manage catalog rows directly in the store.

A running scheduler picks changes up on its next reconciliation cycle.
Removing a row makes the live job an orphan, which the orphan sweep deletes.`,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := openCatalog()
		if err != nil {
			return err
		}
		rows, err := catalog.List(cmd.Context(), domain.TaskFilter{})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCRON\tMETHOD\tCONCURRENT\tSTATUS\tUPDATED\tDESCRIPTION")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n", r.Name, r.CronExpression, r.Method,
				r.AllowConcurrent, r.Status(), r.UpdatedTime.Format(time.DateTime), r.Description)
		}
		return w.Flush()
	},
}

var catalogPutCmd = &cobra.Command{
	Use:   "put <name>",
	Short: "Insert or overwrite a catalog row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := _const.Parser.Parse(putCron); err != nil {
			return errors.Wrapf(err, "invalid cron %q", putCron)
		}
		catalog, err := openCatalog()
		if err != nil {
			return err
		}
		method := putMethod
		if method == "" {
			method = _const.DefaultMethod
		}
		return catalog.Save(cmd.Context(), domain.JobSpec{
			Name:            args[0],
			CronExpression:  putCron,
			Method:          method,
			AllowConcurrent: putConcurrent,
			Enabled:         !putDisabled,
			Description:     putDescription,
		})
	},
}

var catalogEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a catalog row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd.Context(), args[0], _const.TaskStatusEnable)
	},
}

var catalogDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a catalog row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setStatus(cmd.Context(), args[0], _const.TaskStatusDisable)
	},
}

var catalogRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a catalog row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := openCatalog()
		if err != nil {
			return err
		}
		ok, err := catalog.Remove(cmd.Context(), domain.ByName(args[0]))
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(errNoRow, "%s", args[0])
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "Show recent executions of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireCatalog(); err != nil {
			return err
		}
		db, err := dao.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		recs, err := repository.NewTaskLogRepository(dao.NewTaskLogDAO(db)).
			ListByTask(cmd.Context(), args[0], logsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tDURATION\tMANUAL\tSKIPPED\tERROR")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", r.StartedAt.Format(time.DateTime),
				r.Duration, r.Manual, r.Skipped, r.Error)
		}
		return w.Flush()
	},
}

var errNoRow = errors.New("no such catalog row")

func init() {
	catalogPutCmd.Flags().StringVar(&putCron, "cron", "", "cron expression")
	catalogPutCmd.Flags().StringVar(&putMethod, "method", "", "method of a method-style target")
	catalogPutCmd.Flags().BoolVar(&putConcurrent, "concurrent", false, "allow overlapping executions")
	catalogPutCmd.Flags().BoolVar(&putDisabled, "disabled", false, "store the row disabled")
	catalogPutCmd.Flags().StringVar(&putDescription, "description", "", "description")
	_ = catalogPutCmd.MarkFlagRequired("cron")

	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 20, "number of records")

	catalogCmd.AddCommand(catalogListCmd, catalogPutCmd, catalogEnableCmd, catalogDisableCmd, catalogRemoveCmd)
}

func openCatalog() (repository.CatalogRepository, error) {
	if err := cfg.RequireCatalog(); err != nil {
		return nil, err
	}
	db, err := dao.Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return repository.NewCatalogRepository(dao.NewTaskDAO(db)), nil
}

func setStatus(ctx context.Context, name string, status _const.TaskStatus) error {
	catalog, err := openCatalog()
	if err != nil {
		return err
	}
	_, ok, err := catalog.GetOne(ctx, domain.ByName(name))
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(errNoRow, "%s", name)
	}
	_, err = catalog.Update(ctx, domain.SetStatus(status), domain.ByName(name))
	return err
}
