package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spese-report/internal/amqp"
	"spese-report/internal/backend"
	"spese-report/internal/cli"
	"spese-report/internal/config"
	"spese-report/internal/log"
	"spese-report/internal/period"
	"spese-report/internal/report"
	"spese-report/internal/services"
	"spese-report/internal/sheets"
	gsheet "spese-report/internal/sheets/google"
	"spese-report/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig(os.Getenv("REPORT_CONFIG_FILE"))
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	logger.Info("Starting report-worker", log.FieldOperation, log.OpStartup)

	ctx := context.Background()
	store, err := backend.Open(ctx, backend.FromAppConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	resolver := period.NewResolver(cfg.WeekStart)
	reports := report.NewService(store, report.Config{Resolver: resolver, Logger: logger})

	renderer, err := worker.NewRenderer()
	if err != nil {
		logger.Error("Failed to parse e-mail templates", log.FieldError, err)
		os.Exit(1)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled, delivering reports in process")
	}

	// Without a broker the scheduler hands messages straight to the worker,
	// and retries go back through the same path.
	var delivery *worker.DeliveryWorker
	var publisher services.Publisher
	if amqpClient != nil {
		publisher = amqpClient
	} else {
		publisher = services.PublisherFunc(func(ctx context.Context, msg *amqp.ReportReadyMessage) error {
			return delivery.HandleReportMessage(ctx, msg)
		})
	}

	mailer := newMailer(cfg, logger)
	deliveryCfg := worker.DefaultDeliveryConfig()
	deliveryCfg.MaxRetries = cfg.DeliveryMaxRetries
	delivery = worker.NewDeliveryWorker(
		reports,
		store,
		mailer,
		renderer,
		newExporter(ctx, cfg, logger),
		publisher,
		deliveryCfg,
		logger,
	)

	scheduler := services.NewScheduler(store, publisher, resolver, services.SchedulerConfig{
		Tick:          cfg.SchedulerTick,
		Location:      cfg.Location(),
		CatchUp:       24 * time.Hour,
		Granularities: []period.Granularity{period.Week, period.Month, period.Quarter, period.Yearly},
	}, logger)
	if cfg.DailyReminder {
		scheduler.EnableReminder(store, worker.NewReminderMailer(mailer, renderer, cfg.AppURL),
			services.DailyTrigger{Hour: cfg.ReminderHour})
		logger.Info("Daily reminder enabled", "hour", cfg.ReminderHour)
	}

	runCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Error("Scheduler stop failed", log.FieldError, err)
		}
	})

	if err := scheduler.Start(runCtx); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeWithReconnect(runCtx, delivery.HandleReportMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Worker stopped")
}

func newMailer(cfg *config.Config, logger *log.Logger) worker.Mailer {
	if !cfg.MailEnabled() {
		logger.Info("SMTP_HOST not set, report e-mails are logged only")
		return worker.NewLogMailer(logger)
	}
	return worker.NewSMTPMailer(worker.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
}

// newExporter returns nil when sheets export is off or cannot start; the
// worker then skips the export step.
func newExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) sheets.ReportExporter {
	if !cfg.SheetsEnabled() {
		return nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		SheetName:     cfg.GoogleSheetName,
		ClientJSON:    cfg.GoogleOAuthClientJSON,
		ClientFile:    cfg.GoogleOAuthClientFile,
		TokenJSON:     cfg.GoogleOAuthTokenJSON,
		TokenFile:     cfg.GoogleOAuthTokenFile,
	}, logger)
	if err != nil {
		logger.Error("Google Sheets export disabled", log.FieldError, err)
		return nil
	}
	if err := client.EnsureHeader(ctx); err != nil {
		logger.Warn("Could not write sheet header", log.FieldError, err)
	}
	logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client
}
