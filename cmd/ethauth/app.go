package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-ethauth"
	"github.com/goliatone/go-ethauth/config"
	"github.com/goliatone/go-ethauth/grant"
)

// service holds the wired HTTP app and the resources it owns
type service struct {
	app      *fiber.App
	db       *bun.DB
	policies *ethauth.StaticPolicyStore
}

func (s *service) Close() error {
	return s.db.Close()
}

// deps lets tests replace the outbound collaborators
type deps struct {
	emails    ethauth.EmailSender
	providers []grant.Provider
	registry  *prometheus.Registry
}

func newService(ctx context.Context, cfg *config.Config, slogger *slog.Logger, d deps) (*service, error) {
	logger := ethauth.NewSlogLogger(slogger)

	db, err := ethauth.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if _, err := ethauth.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	repo := ethauth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		db.Close()
		return nil, err
	}

	registry := d.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics := ethauth.NewMetrics(registry)

	nonces, err := ethauth.NewNonceManager(repo.Users(), cfg.Nonce.UpperBound, ethauth.WithNonceMetrics(metrics))
	if err != nil {
		db.Close()
		return nil, err
	}

	policy := cfg.Auth
	policies := ethauth.NewStaticPolicyStore(&policy)

	tokens := ethauth.NewTokenService([]byte(cfg.JWT.SigningKey), cfg.JWT.Expiration, cfg.JWT.Issuer, cfg.JWT.Audience, logger)

	emails := d.emails
	if emails == nil {
		slogger.Warn("no email sender configured, emails are logged and not delivered")
		emails = ethauth.NewLoggingEmailSender(logger)
	}

	providers := d.providers
	if providers == nil {
		providers = []grant.Provider{grant.NewGitHub(grant.GitHubConfig{})}
	}
	connector := grant.NewConnector(repo, nonces, providers...).WithLogger(logger)

	activity := ethauth.ActivitySinkFunc(func(ctx context.Context, event ethauth.ActivityEvent) error {
		slogger.InfoContext(ctx, "auth activity",
			"event", event.EventType,
			"user_id", event.UserID,
			"provider", event.Provider,
			"error_kind", event.ErrorKind,
		)
		return nil
	})

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	mailer := ethauth.NewConfirmationMailer(repo.Users(), emails, publicURL+"/auth/email-confirmation")

	controller := ethauth.NewAuthController(repo, policies, tokens,
		ethauth.WithControllerLogger(logger),
		ethauth.WithControllerDebug(cfg.Debug),
		ethauth.WithMetricsGatherer(registry),
		ethauth.WithCommandHandlers(
			ethauth.NewLoginHandler(repo, policies, nonces, tokens).
				WithProviderConnector(connector).
				WithActivitySink(activity).
				WithMetrics(metrics).
				WithLogger(logger),
			ethauth.NewRegisterUserHandler(repo, policies, nonces, tokens, mailer).
				WithHashid(cfg.UseHashid).
				WithActivitySink(activity).
				WithMetrics(metrics).
				WithLogger(logger),
			ethauth.NewInitializePasswordResetHandler(repo, policies, emails).
				WithActivitySink(activity).
				WithMetrics(metrics).
				WithLogger(logger),
			ethauth.NewFinalizePasswordResetHandler(repo, ethauth.NewBcryptHasher(cfg.BcryptCost), tokens).
				WithActivitySink(activity).
				WithMetrics(metrics).
				WithLogger(logger),
			ethauth.NewEmailConfirmationHandler(repo, policies, tokens).
				WithActivitySink(activity).
				WithMetrics(metrics).
				WithLogger(logger),
			ethauth.NewSendEmailConfirmationHandler(repo, policies, mailer).
				WithMetrics(metrics).
				WithLogger(logger),
			ethauth.NewConnectHandler(policies, connector).
				WithLogger(logger),
		),
	)

	app := fiber.New(fiber.Config{
		AppName:               "ethauth",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	controller.RegisterRoutes(app)

	return &service{app: app, db: db, policies: policies}, nil
}

// errorHandler reports routing errors in the auth error shape
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ethauth.ErrorResponse{
			StatusCode: fe.Code,
			Error:      fe.Message,
			Message:    fe.Message,
			ErrorID:    ethauth.IDParamsProvide,
			Data:       []ethauth.ErrorData{},
		})
	}
	return ethauth.WriteError(c, err)
}
