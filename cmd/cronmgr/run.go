package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cm "github.com/TimeWtr/cron_manager"
	"github.com/TimeWtr/cron_manager/repository"
	"github.com/TimeWtr/cron_manager/repository/dao"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func run(ctx context.Context) error {
	logger := cm.NewZapLogger(zl)
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	registry, err := demoRegistry(logger)
	if err != nil {
		return err
	}

	engineOpts := []cm.EngineOptions{
		cm.WithEngineLocation(loc),
		cm.WithEngineLimiter(cfg.MaxConcurrent),
	}
	managerOpts := []cm.Options{
		cm.WithRunTask(cfg.RunTask),
		cm.WithGroups(cfg.JobGroup, cfg.TriggerGroup),
		cm.WithReconcileCron(cfg.ReconcileCron),
		cm.WithSweepStrategy(cm.NewSweepStrategy(cfg.SweepMode(), cfg.DissociateProbability)),
	}

	var logs *cm.TaskLogStore
	if cfg.EnablePersist {
		db, err := dao.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}
		var logOpts []cm.TaskLogOptions
		if cfg.AsyncLog {
			logOpts = append(logOpts, cm.WithAsyncLog(cfg.AsyncLogQueue))
		}
		logs = cm.NewTaskLogStore(repository.NewTaskLogRepository(dao.NewTaskLogDAO(db)), logger, logOpts...)
		defer logs.Close()

		engineOpts = append(engineOpts, cm.WithRecorder(logs))
		managerOpts = append(managerOpts,
			cm.WithPersistence(repository.NewCatalogRepository(dao.NewTaskDAO(db))))
	}

	engine := cm.NewCronEngine(logger, engineOpts...)
	manager := cm.NewSchedulerManager(engine, registry, logger, managerOpts...)
	if err = manager.RegisterJobs(ctx); err != nil {
		return err
	}
	logger.Info("cronmgr running", cm.Field{Key: "persistence", Val: manager.Persistence()},
		cm.String("sweep", cfg.SweepMode().String()))

	api := cm.NewTaskManagerAPI(manager, logger)
	if res := api.ListJobMessages(ctx); res.Success() {
		for _, job := range res.Data {
			logger.Info("job", cm.String("name", job.JobName), cm.String("cron", job.CronExpression),
				cm.String("state", job.TriggerState.String()))
		}
	} else {
		logger.Warn("list jobs", cm.String("message", res.Message))
	}

	<-ctx.Done()
	logger.Info("cronmgr stopping")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return manager.Stop(sctx)
}
