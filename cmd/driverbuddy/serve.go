// README: serve command; wires stores, queues, providers, workers and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"driverbuddy/internal/config"
	"driverbuddy/internal/dedup"
	httptransport "driverbuddy/internal/http"
	"driverbuddy/internal/http/handlers"
	"driverbuddy/internal/http/middleware"
	"driverbuddy/internal/infra"
	"driverbuddy/internal/maps"
	"driverbuddy/internal/modules/driver"
	"driverbuddy/internal/modules/event"
	"driverbuddy/internal/modules/message"
	"driverbuddy/internal/modules/pipeline"
	"driverbuddy/internal/modules/telemetry"
	"driverbuddy/internal/notify"
	"driverbuddy/internal/queue"
	"driverbuddy/internal/sms"
)

func serveCmd() *cobra.Command {
	var noWorkers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the event and SMS workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), !noWorkers)
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "Serve HTTP only; run workers in another process")
	return cmd
}

func serve(ctx context.Context, withWorkers bool) error {
	gin.SetMode(gin.ReleaseMode)
	if withWorkers {
		if err := cfg.ValidateWorkers(); err != nil {
			return err
		}
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	checks := map[string]handlers.Check{
		"database": dbPool.Ping,
		"redis":    func(ctx context.Context) error { return infra.PingRedis(ctx, redisClient) },
	}
	eventsQueue, smsQueue, closeQueues, err := openQueues(ctx, cfg, redisClient, checks)
	if err != nil {
		return err
	}
	defer closeQueues()

	notifier := buildNotifier(ctx, cfg)
	var sender sms.Sender = sms.Disabled{}
	if cfg.TwilioEnabled() {
		sender = sms.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	} else {
		log.Warn("twilio not configured; sms sends will fail and be recorded as failed")
	}

	driverStore := driver.NewStore(dbPool)
	eventStore := event.NewStore(dbPool)
	messageStore := message.NewStore(dbPool)

	ingest := telemetry.NewService(telemetry.Deps{
		Tx:       telemetry.NewPgTransactor(dbPool),
		Events:   eventsQueue,
		Messages: messageStore,
		Sender:   sender,
		Notifier: notifier,
		Logger:   log,
	}, telemetry.Config{
		StopSpeedThreshold: cfg.Detection.StopSpeedThreshold,
		DirectSMS:          cfg.Detection.DirectSMS,
		FromNumber:         cfg.Twilio.FromNumber,
	})
	messages := message.NewService(messageStore, driverStore, eventStore, notifier,
		message.WithReplyWindow(cfg.Detection.ReplyWindow),
		message.WithLogger(log),
	)

	var runners []pipeline.Runner
	if withWorkers {
		var addresses pipeline.AddressLookup
		if cfg.Maps.APIKey != "" {
			geo, err := maps.NewGeocodeService(cfg.Maps.APIKey)
			if err != nil {
				return fmt.Errorf("geocoder: %w", err)
			}
			addresses = geo
		}
		processor := pipeline.NewEventProcessor(pipeline.EventProcessorDeps{
			Events:     eventStore,
			Drivers:    driverStore,
			Messages:   messageStore,
			SMSQueue:   smsQueue,
			Notifier:   notifier,
			Addresses:  addresses,
			FromNumber: cfg.Twilio.FromNumber,
			Logger:     log,
		})
		callbackURL := handlers.StatusCallbackURL(cfg.HTTP.PublicBaseURL, nil)
		if callbackURL == "" {
			log.Warn("PUBLIC_BASE_URL not set; queued sms will not request delivery callbacks", "sms_enabled", cfg.TwilioEnabled())
		}
		smsWorker := pipeline.NewSMSWorker(pipeline.SMSWorkerDeps{
			Messages:          messageStore,
			Claims:            dedup.NewClaims(redisClient, "driverbuddy", cfg.Queue.Visibility),
			Sender:            sender,
			StatusCallbackURL: callbackURL,
			Logger:            log,
		})
		workerCfg := pipeline.WorkerConfig{
			BatchSize:    cfg.Queue.BatchSize,
			Wait:         cfg.Queue.Wait,
			ErrorBackoff: cfg.Worker.ErrorBackoff,
			JobTimeout:   cfg.Queue.Visibility,
		}
		runners = append(runners,
			pipeline.NewWorker("event_processor", eventsQueue, processor.Handle, workerCfg, log),
			pipeline.NewWorker("sms_worker", smsQueue, smsWorker.Handle, workerCfg, log),
		)
	}
	supervisor := pipeline.NewSupervisor(runners...)

	deps := httptransport.ServerDeps{
		Telemetry:     ingest,
		Events:        event.NewService(eventStore),
		Messages:      messages,
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		HealthChecks:  checks,
		Workers:       supervisor.Status,
		Logger:        log,
	}
	if checker := signatureChecker(cfg); checker != nil {
		deps.Signature = checker
	}
	server := httptransport.NewServer(deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervisor.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx, cfg.HTTP.Addr) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// signatureChecker returns nil when webhook signature validation is off.
func signatureChecker(c config.Config) middleware.SignatureChecker {
	if !c.Twilio.ValidateSignature {
		return nil
	}
	return sms.NewSignatureValidator(c.Twilio.AuthToken)
}

func openQueues(ctx context.Context, cfg config.Config, redisClient *redis.Client, checks map[string]handlers.Check) (queue.Queue, queue.Queue, func(), error) {
	opts := queue.Options{
		Visibility:   cfg.Queue.Visibility,
		MaxReceive:   cfg.Queue.MaxReceive,
		PollInterval: cfg.Queue.PollInterval,
	}
	switch cfg.Queue.Backend {
	case config.QueueBackendRabbitMQ:
		ev, err := queue.NewRabbit(ctx, cfg.Queue.AMQPURL, cfg.Queue.EventsQueue, opts, log)
		if err != nil {
			return nil, nil, nil, err
		}
		sq, err := queue.NewRabbit(ctx, cfg.Queue.AMQPURL, cfg.Queue.SMSQueue, opts, log)
		if err != nil {
			_ = ev.Close()
			return nil, nil, nil, err
		}
		checks["rabbitmq"] = func(context.Context) error {
			if !ev.IsAlive() || !sq.IsAlive() {
				return errors.New("disconnected")
			}
			return nil
		}
		return ev, sq, func() { _ = ev.Close(); _ = sq.Close() }, nil
	case config.QueueBackendMemory:
		log.Warn("in-memory queues: jobs are lost on restart")
		return queue.NewMemory(cfg.Queue.EventsQueue, opts), queue.NewMemory(cfg.Queue.SMSQueue, opts), func() {}, nil
	default:
		return queue.NewRedis(redisClient, cfg.Queue.EventsQueue, opts),
			queue.NewRedis(redisClient, cfg.Queue.SMSQueue, opts),
			func() {}, nil
	}
}

// buildNotifier fans alerts out to every configured channel and always to the log.
func buildNotifier(ctx context.Context, cfg config.Config) notify.Notifier {
	channels := notify.Multi{notify.NewLog(log)}
	if cfg.Slack.WebhookURL != "" {
		channels = append(channels, notify.NewSlack(cfg.Slack.WebhookURL, log))
	}
	if cfg.Firebase.ProjectID != "" {
		client, err := infra.NewFirebaseMessaging(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Warn("firebase messaging disabled", "error", err.Error())
		} else {
			channels = append(channels, notify.NewFCM(client, cfg.Firebase.Topic, log))
		}
	}
	return channels
}
