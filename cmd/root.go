package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "jobvine"
)

type Config struct {
	Persona  string          `mapstructure:"persona"`
	Telegram *TelegramConfig `mapstructure:"telegram"`
	AI       *AIConfig       `mapstructure:"ai"`
	Store    *StoreConfig    `mapstructure:"store"`
	Limits   *LimitsConfig   `mapstructure:"limits"`
}

type TelegramConfig struct {
	Token             string `mapstructure:"token"`
	TokenFile         string `mapstructure:"token-file"`
	WebhookSecret     string `mapstructure:"webhook-secret"`
	WebhookSecretFile string `mapstructure:"webhook-secret-file"`
	WebhookPath       string `mapstructure:"webhook-path"`
	Listen            string `mapstructure:"listen"`
}

type AIConfig struct {
	Provider       string        `mapstructure:"provider"`
	TimeoutSeconds int           `mapstructure:"timeout-seconds"`
	Gemini         *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LimitsConfig struct {
	MessagesPerMinute int `mapstructure:"messages-per-minute"`
	NoticesPerHour    int `mapstructure:"notices-per-hour"`
	SessionCache      int `mapstructure:"session-cache"`
	DedupCache        int `mapstructure:"dedup-cache"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobvine is a Telegram bot that interviews candidates and hiring managers and matches them",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"telegram.token-file":          "JOBVINE_TELEGRAM_TOKEN_FILE",
		"telegram.webhook-secret-file": "JOBVINE_WEBHOOK_SECRET_FILE",
		"ai.gemini.api-key-file":       "JOBVINE_GEMINI_API_KEY_FILE",
		"store.dsn":                    "JOBVINE_STORE_DSN",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobvine.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	viper.SetDefault("persona", defaultPersona)
	viper.SetDefault("telegram.webhook-path", "/telegram/webhook")
	viper.SetDefault("telegram.listen", ":8080")
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.timeout-seconds", 25)
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.dsn", app+".db")
	viper.SetDefault("limits.messages-per-minute", 20)
	viper.SetDefault("limits.notices-per-hour", 10)
	viper.SetDefault("limits.session-cache", 1024)
	viper.SetDefault("limits.dedup-cache", 4096)

	// The config file is optional; env vars and defaults can carry a deploy.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
