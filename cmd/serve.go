package cmd

import (
	"context"
	"os"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harborkv/dsgate/pkg/server"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	serveCfgFile string
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dsgate gateway",
	Long:  `The gateway serves data operations, bulk jobs and statistics over its REST API.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveCfgFile, "config", "config.yaml", "config file (default is config.yaml)")
}

func loadServeConfigFromFile(file string) (*server.Config, error) {
	if file == "" {
		file = "config.yaml"
	}

	config := &server.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(file) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}

func resolveLogLevel(configured, override string) (logrus.Level, error) {
	if override != "" {
		return logrus.ParseLevel(override)
	}

	return logrus.ParseLevel(configured)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	// Load configuration
	config, err := loadServeConfigFromFile(serveCfgFile)
	if err != nil {
		return err
	}

	// Setup logger; the --log-level flag wins over the config file
	level, err := resolveLogLevel(config.LoggingLevel, logLevelFlag)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetLevel(level)

	log.Info("Configuration loaded")

	ctx := context.Background()

	svc, err := server.NewServer(ctx, log, config)
	if err != nil {
		return err
	}

	return svc.Start(ctx)
}
