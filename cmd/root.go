package cmd

import (
	"errors"
	"log"

	"github.com/spigell/job-seeker/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	app = "job-seeker"
)

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "job-seeker matches job postings against local résumés and notifies about new matches once",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"source.token-file":      "JOB_SEEKER_TOKEN_FILE",
		"store.dsn-file":         "JOB_SEEKER_DSN_FILE",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults(viper.GetViper())
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is job-seeker.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// version needs no config
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
	case cfgFile == "" && errors.As(err, &notFound):
		// defaults are enough for report and checkpoint commands
	default:
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

// bootstrap builds the logger and the validated config shared by every command.
func bootstrap() (*zap.Logger, *Config) {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := loadConfig(viper.GetViper())
	if err != nil {
		l.Fatal("getting a config", zap.Error(err),
			zap.String("hint", "check job-seeker.yaml or the file passed with --config"),
		)
	}

	if f := viper.ConfigFileUsed(); f != "" {
		l.Debug("config loaded", zap.String("file", f))
	}

	return l, config
}
