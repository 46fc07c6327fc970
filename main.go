package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldcrm/config"
	controller "fieldcrm/controllers"
	"fieldcrm/integrations"
	"fieldcrm/middleware"
	"fieldcrm/routes"
	"fieldcrm/services"
	"fieldcrm/utils"
	"fieldcrm/worker"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := utils.NewLogger(cfg.Environment)
	cfg.Log(log)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			log.WithError(err).Warn("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := config.ConnectDB(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Redis unavailable, using in-memory limiter and locks")
			redisClient = nil
		}
	}

	// adapters; unconfigured ones stay nil interfaces
	var (
		sms    services.SMSSender
		mail   services.EmailSender
		llm    services.LLM
		store  services.BlobStore
		verify controller.RequestValidator
	)
	if tw := integrations.NewTwilio(cfg.Twilio); tw != nil {
		sms, verify = tw, tw
	}
	if m := integrations.NewMailer(cfg.SMTP); m != nil {
		mail = m
	}
	if ai := integrations.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel); ai != nil {
		llm = ai
	}
	if gcs, err := integrations.NewGCSStore(ctx, cfg.Storage); err != nil {
		log.WithError(err).Warn("Attachment storage disabled")
	} else {
		store = gcs
	}
	httpClient := integrations.NewHTTPClient(10 * time.Second)
	google := integrations.NewGoogle(cfg.Google, db, utils.NewCrypter(cfg.EncryptionKey))
	var calendar services.CalendarProvider
	if google.Configured() {
		calendar = integrations.NewCalendar(google)
	}

	var locks services.KeyedLocker = services.NewLocalLocker()
	var limiterStorage fiber.Storage
	if redisClient != nil {
		locks = services.NewRedisLocker(redisClient, 30*time.Second)
		limiterStorage = middleware.NewRedisStorage(redisClient)
	}

	// services
	dispatcher := services.NewAutomationDispatcher(db, services.DefaultExecutors(db, mail, sms, httpClient), log)
	events := services.NewEventBus(dispatcher, services.NewWebhookQueue(db), log)
	processor := services.NewWebhookProcessor(db, httpClient, log)
	triage := services.NewTriageService(db, services.NewTriageAnalyzer(llm), events, log)
	hub := controller.NewSMSHub(log)
	smsFlow := services.NewSMSFlow(db, sms, locks, hub, log)
	attachments := services.NewAttachments(db, store, services.BucketPolicy{
		MaxBytes:     cfg.Storage.MaxUploadBytes,
		AllowedTypes: cfg.Storage.AllowedTypes,
	}, log)
	audit := services.NewAuditor(db, log)
	authority := middleware.NewAuthority(cfg.AuthzMode, db)

	app := fiber.New(fiber.Config{
		AppName:   "fieldcrm",
		BodyLimit: int(cfg.Storage.MaxUploadBytes) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			} else {
				utils.LogError(log, "unhandled_error", err, map[string]interface{}{"path": c.Path()})
			}
			return utils.ErrorResponse(c, code, err.Error(), nil)
		},
	})

	prometheus := fiberprometheus.New("fieldcrm")
	prometheus.RegisterAt(app, "/metrics")

	app.Use(recover.New())
	app.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins)))
	app.Use(prometheus.Middleware)
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.Setup(app, routes.Deps{
		Gate: &middleware.Gate{
			DB:                  db,
			Secret:              cfg.JWTSecret,
			CookieName:          cfg.SessionCookieName,
			Authority:           authority,
			BootstrapAdminEmail: cfg.BootstrapAdminEmail,
			Logger:              log,
		},
		AILimiter: middleware.UserRateLimiter(cfg.RateLimitAI, time.Minute, limiterStorage, log),
		Controllers: routes.Controllers{
			Users:        controller.NewUserController(db, log, authority, audit),
			Contacts:     controller.NewContactController(db, log, events, attachments, audit),
			Categories:   controller.NewCategoryController(db, log),
			ProfileTypes: controller.NewProfileTypeController(db, log),
			CustomFields: controller.NewCustomFieldController(db, log),
			Appliances:   controller.NewApplianceController(db, log),
			Pipeline:     controller.NewPipelineController(db, log),
			Deals:        controller.NewDealController(db, log, events, attachments, audit),
			Tasks:        controller.NewTaskController(db, log, events, attachments),
			Services:     controller.NewServiceController(db, log, events, triage, smsFlow, calendar, attachments, audit),
			Sheets:       controller.NewServiceSheetController(db, log),
			Invoices:     controller.NewInvoiceController(db, log, events, mail, attachments, audit, cfg.AppURL),
			Payments:     controller.NewPaymentController(db, log, events, integrations.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret), cfg.AppURL),
			Attachments:  controller.NewAttachmentController(db, log, attachments),
			Automations:  controller.NewAutomationController(db, log, dispatcher, audit),
			Webhooks:     controller.NewWebhookController(db, log, processor, cfg.CronSecret, cfg.WebhookBatchSize),
			SMS:          controller.NewSMSController(db, log, smsFlow, events, verify, cfg.Twilio.InboundURL),
			SMSHub:       hub,
			AI:           controller.NewAIController(services.NewAssistant(db, llm), log),
			Integrations: controller.NewIntegrationController(db, log, google, integrations.NewSheets(google), cfg.AppURL, cfg.IsProduction()),
			Dashboard:    controller.NewDashboardController(db, log),
			Audit:        controller.NewAuditController(db),
		},
	})

	go worker.NewWebhookWorker(processor, log, cfg.WebhookWorkerInterval, cfg.WebhookBatchSize).Start(ctx)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down server")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Server shutdown failed")
		}
	}()

	log.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
