package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"spese-report/internal/amqp"
	"spese-report/internal/core"
	"spese-report/internal/log"
	"spese-report/internal/period"
	"spese-report/internal/services"
	"spese-report/internal/worker"
)

type runBatchFlags struct {
	due    bool
	dryRun bool
}

func newRunBatchCommand(opts *rootOptions) *cobra.Command {
	flags := &runBatchFlags{}
	cmd := &cobra.Command{
		Use:   "run-batch [weekly|monthly|quarterly|yearly] [period]",
		Short: "Send the reports of one period to every user with entries",
		Long: "Send the reports of one period to every user with entries. With --due it\n" +
			"instead runs whatever scheduled batches are due now and records them in the\n" +
			"run log, exactly like one tick of report-worker.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flags.due && len(args) == 0 {
				return errors.New("granularity is required unless --due is set")
			}

			ctx := cmd.Context()
			a, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			publisher, closePublisher, err := a.publisher(flags.dryRun)
			if err != nil {
				return err
			}
			defer closePublisher()

			cfg := services.DefaultSchedulerConfig()
			cfg.Location = a.cfg.Location()
			scheduler := services.NewScheduler(a.store, publisher, period.NewResolver(a.cfg.WeekStart), cfg, a.logger)

			if flags.due {
				return opts.print(cmd.OutOrStdout(), scheduler.Tick(ctx))
			}

			g, err := period.ParseGranularity(args[0])
			if err != nil {
				return err
			}
			token := time.Now().Format("2006-01-02")
			if len(args) == 2 {
				token = args[1]
			}
			res, err := scheduler.RunFor(ctx, g, token)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&flags.due, "due", false, "Run the batches whose trigger has fired")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Count recipients without publishing or sending")
	return cmd
}

// publisher is the AMQP client when a broker is configured and an in-process
// delivery worker otherwise.
func (a *app) publisher(dryRun bool) (services.Publisher, func(), error) {
	if dryRun {
		var n atomic.Int64
		return services.PublisherFunc(func(ctx context.Context, msg *amqp.ReportReadyMessage) error {
			a.logger.InfoContext(ctx, "Dry run, not publishing",
				log.FieldMessageID, msg.ID,
				log.FieldUserID, msg.UserID,
				log.FieldPeriod, msg.PeriodValue,
				"count", n.Add(1))
			return nil
		}), func() {}, nil
	}

	if a.cfg.AMQPURL != "" {
		client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	}

	renderer, err := worker.NewRenderer()
	if err != nil {
		return nil, nil, err
	}
	mailer := a.mailer()
	// No publisher: a failed delivery is logged and not retried.
	delivery := worker.NewDeliveryWorker(newReportService(a), a.store, mailer, renderer, nil, nil,
		worker.DeliveryConfig{MaxRetries: a.cfg.DeliveryMaxRetries}, a.logger)
	return services.PublisherFunc(delivery.HandleReportMessage), func() {}, nil
}

// mailer is the SMTP relay when one is configured and a logging stand-in
// otherwise.
func (a *app) mailer() worker.Mailer {
	if !a.cfg.MailEnabled() {
		return worker.NewLogMailer(a.logger)
	}
	return worker.NewSMTPMailer(worker.SMTPConfig{
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Username: a.cfg.SMTPUsername,
		Password: a.cfg.SMTPPassword,
		From:     a.cfg.MailFrom,
	})
}

func newRemindCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send today's expense reminder to every user with a bill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var reminder services.Reminder
			if dryRun {
				reminder = reminderFunc(func(ctx context.Context, u core.User) error {
					a.logger.InfoContext(ctx, "Dry run, not reminding", log.FieldUserID, u.ID)
					return nil
				})
			} else {
				renderer, err := worker.NewRenderer()
				if err != nil {
					return err
				}
				reminder = worker.NewReminderMailer(a.mailer(), renderer, a.cfg.AppURL)
			}

			cfg := services.DefaultSchedulerConfig()
			cfg.Location = a.cfg.Location()
			scheduler := services.NewScheduler(a.store, services.PublisherFunc(
				func(context.Context, *amqp.ReportReadyMessage) error { return nil }),
				period.NewResolver(a.cfg.WeekStart), cfg, a.logger)
			scheduler.EnableReminder(a.store, reminder, services.DailyTrigger{Hour: a.cfg.ReminderHour})

			res, err := scheduler.RunReminders(ctx, time.Now().In(cfg.Location).Format(time.DateOnly))
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count recipients without sending")
	return cmd
}

type reminderFunc func(ctx context.Context, u core.User) error

func (f reminderFunc) Remind(ctx context.Context, u core.User) error {
	return f(ctx, u)
}
