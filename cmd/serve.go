package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mavrk/jobvine/internal/ai/gemini"
	"github.com/mavrk/jobvine/internal/ai/safecall"
	"github.com/mavrk/jobvine/internal/dedup"
	"github.com/mavrk/jobvine/internal/intake"
	"github.com/mavrk/jobvine/internal/interview"
	"github.com/mavrk/jobvine/internal/logger"
	"github.com/mavrk/jobvine/internal/matching"
	"github.com/mavrk/jobvine/internal/orchestrator"
	"github.com/mavrk/jobvine/internal/ratelimit"
	"github.com/mavrk/jobvine/internal/routing"
	"github.com/mavrk/jobvine/internal/secrets"
	"github.com/mavrk/jobvine/internal/session"
	"github.com/mavrk/jobvine/internal/store"
	"github.com/mavrk/jobvine/internal/telegram"
)

const defaultPersona = "You are Vine, a friendly and professional recruiting assistant. " +
	"You interview hiring managers about their vacancies and candidates about their experience, " +
	"one question at a time, and you never invent facts about either side. " +
	"You answer in the language the user writes in."

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the jobvine webhook server",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")
	viper.BindPFlag("telegram.listen", serveCmd.Flags().Lookup("listen"))
}

func serve(cmd *cobra.Command) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		cmd.PrintErrf("creating logger: %v\n", err)
		return
	}

	config, err := getConfig()
	if err != nil {
		log.Fatal("parsing config", zap.Error(err))
	}
	if config.Telegram == nil || config.AI == nil || config.AI.Gemini == nil {
		log.Fatal("telegram and ai.gemini sections are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	token, err := secrets.Load(secrets.Source{
		Name:  "telegram bot token",
		Value: config.Telegram.Token,
		File:  config.Telegram.TokenFile,
	})
	if err != nil {
		log.Fatal("loading telegram token", zap.Error(err))
	}

	secret, err := secrets.Load(secrets.Source{
		Name:  "webhook secret",
		Value: config.Telegram.WebhookSecret,
		File:  config.Telegram.WebhookSecretFile,
	})
	if err != nil {
		log.Fatal("loading webhook secret", zap.Error(err))
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: config.AI.Gemini.APIKey,
		File:  config.AI.Gemini.APIKeyFile,
	})
	if err != nil {
		log.Fatal("loading gemini api key", zap.Error(err))
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, config.AI.Gemini.Model)
	if err != nil {
		log.Fatal("creating gemini client", zap.Error(err))
	}
	log = logger.WithCommonFields(log, config.AI.Provider, generator.Model())

	db, err := store.Open(config.Store.Driver, config.Store.DSN)
	if err != nil {
		log.Fatal("opening store", zap.Error(err))
	}

	invoker := safecall.New(generator, config.Persona, time.Duration(config.AI.TimeoutSeconds)*time.Second, log)
	bot := telegram.New(log, token)

	orch, err := orchestrator.New(orchestrator.Config{
		Gate:        dedup.New(db, config.Limits.DedupCache, log),
		Sessions:    session.NewManager(db, config.Limits.SessionCache, log),
		Router:      routing.NewClassifier(invoker, log),
		Intents:     interview.NewClassifier(invoker, log),
		Transport:   bot,
		Extractor:   intake.NewExtractor(bot, log),
		Transcriber: intake.NewTranscriber(bot, generator, log),
		Matching:    matching.New(db, log),
		Limiter:     ratelimit.New(config.Limits.MessagesPerMinute, time.Minute),
		Notices:     ratelimit.New(config.Limits.NoticesPerHour, time.Hour),
		Logger:      log,
	})
	if err != nil {
		log.Fatal("wiring orchestrator", zap.Error(err))
	}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	webhook := telegram.NewWebhook(secret, orch, log)
	webhook.Register(router, config.Telegram.WebhookPath)

	srv := &http.Server{
		Addr:              config.Telegram.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
		if err := webhook.Drain(shutdownCtx); err != nil {
			log.Warn("draining in-flight updates", zap.Error(err))
		}
	}()

	log.Info("listening for telegram updates",
		zap.String("addr", config.Telegram.Listen),
		zap.String("path", config.Telegram.WebhookPath),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}
