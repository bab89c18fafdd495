package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"advisor-twin/internal/assistant"
	"advisor-twin/internal/auth"
	"advisor-twin/internal/config"
	"advisor-twin/internal/email"
	apphttp "advisor-twin/internal/http"
	"advisor-twin/internal/mirror"
	"advisor-twin/internal/ratelimit"
	"advisor-twin/internal/repository/sqldb"
	"advisor-twin/internal/service"
	"advisor-twin/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	secret, source, err := auth.ResolveSecret(auth.SecretOptions{
		Secret:    cfg.Auth.JWTSecret,
		File:      cfg.Auth.SecretFile,
		Ephemeral: cfg.Auth.EphemeralSecret,
	})
	if err != nil {
		logger.Fatalf("resolve jwt secret: %v", err)
	}
	switch source {
	case auth.SecretEphemeral:
		logger.Warn("using an ephemeral jwt secret: issued tokens stop working on restart")
	case auth.SecretFromGenerated:
		logger.Infof("generated jwt secret at %s", cfg.Auth.SecretFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := cfg.Database.Path
	if cfg.Database.Driver == string(sqldb.DialectPostgres) {
		dsn = cfg.Database.DSN
	}
	db, err := sqldb.Open(cfg.Database.Driver, dsn)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := sqldb.Migrate(ctx, db, logger); err != nil {
		logger.Fatalf("migrate database: %v", err)
	}

	tokens := auth.NewTokenManager(secret, cfg.Auth.TokenTTL)
	store := db.Store()

	var mailer email.Sender = email.NewLogSender(logger)
	if strings.TrimSpace(cfg.Email.APIKey) != "" {
		mailer = email.NewHTTPSender(cfg.Email.Endpoint, cfg.Email.APIKey, cfg.Email.From, nil)
	} else {
		logger.Warn("email api key not set, reset links are logged instead of sent")
	}

	dispatcher, err := buildMirror(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup mirror: %v", err)
	}
	var chatMirror service.Mirror
	if dispatcher != nil {
		dispatcher.Start(context.Background())
		chatMirror = dispatcher
	}

	authService := service.NewAuthService(store, db, tokens, mailer, service.AuthConfig{
		ResetTokenTTL:  cfg.Auth.ResetTokenTTL,
		PublicOrigin:   cfg.Server.PublicOrigin,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger)
	chatService := service.NewChatService(store.Chats, chatMirror, logger)

	loginLimiter := ratelimit.New(ratelimit.Rule{
		Name:    "login",
		Limit:   cfg.RateLimit.Login.Limit,
		Window:  cfg.RateLimit.Login.Window,
		Message: "Too many login attempts, please try again later.",
	})
	defer loginLimiter.Stop()
	forgotLimiter := ratelimit.New(ratelimit.Rule{
		Name:    "forgot-password",
		Limit:   cfg.RateLimit.Forgot.Limit,
		Window:  cfg.RateLimit.Forgot.Window,
		Message: "Too many password reset requests, please try again later.",
	})
	defer forgotLimiter.Stop()

	chatClient := assistant.NewClient(assistant.Config{
		Endpoint:     cfg.Assistant.Endpoint,
		APIKey:       cfg.Assistant.APIKey,
		Model:        cfg.Assistant.Model,
		SystemPrompt: cfg.Assistant.SystemPrompt,
		MaxTokens:    cfg.Assistant.MaxTokens,
	}, nil)
	if !chatClient.Configured() {
		logger.Warn("assistant api key not set, /api/chat will answer 503")
	}

	if cfg.Server.Mode == gin.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Deps{
		Auth:           authService,
		Chats:          chatService,
		Tokens:         tokens,
		Assistant:      chatClient,
		LoginLimiter:   loginLimiter,
		ForgotLimiter:  forgotLimiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if dispatcher != nil {
		dispatcher.Shutdown()
	}

	logger.Info("bye")
}

// buildMirror returns nil when transcript mirroring is switched off.
func buildMirror(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*mirror.Dispatcher, error) {
	if !cfg.Mirror.Enabled {
		logger.Info("transcript mirror disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Mirror.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Mirror.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Mirror.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("mirroring transcripts to s3 bucket %s (region %s)", cfg.Mirror.Bucket, cfg.Mirror.Region)

	return mirror.NewDispatcher(mirror.Config{
		Folder:        cfg.Mirror.Folder,
		MaxConcurrent: cfg.Mirror.Workers,
		QueueSize:     cfg.Mirror.QueueSize,
		RatePerSecond: cfg.Mirror.RatePerSecond,
		JobTimeout:    cfg.Mirror.JobTimeout,
		Logger:        logger,
	}, storage.NewS3Service(client, cfg.Mirror.Bucket)), nil
}
