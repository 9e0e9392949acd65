package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgehub-io/forgehub/cmd/fhub-aggregator/app/options"
	"github.com/forgehub-io/forgehub/internal/aggregator"
	"github.com/forgehub-io/forgehub/internal/server"
	"github.com/forgehub-io/forgehub/internal/storage"
	mqtttransport "github.com/forgehub-io/forgehub/internal/transport/mqtt"
	"github.com/forgehub-io/forgehub/pkg/log"
	"github.com/forgehub-io/forgehub/pkg/mqtt"
	"github.com/forgehub-io/forgehub/pkg/mqtt/topic"
)

const (
	commandName = "fhub-aggregator"
	commandDesc = `The ForgeHub aggregator is the mid-tier node of a factory: it collects
telemetry from edge modules, derives factory-wide statistics, routes control
commands downward and publishes summaries to the upstream supervisor.`
)

// NewAggregatorCommand builds the root cobra command of the aggregator.
func NewAggregatorCommand() *cobra.Command {
	opts := options.NewAggregatorOptions()
	var configFile string

	cmd := &cobra.Command{
		Use:          commandName,
		Short:        "Launch a ForgeHub aggregation node",
		Long:         commandDesc,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, configFile, opts)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Init(opts.Log)

			if errs := opts.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid configuration: %v", errs)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (YAML).")
	opts.AddFlags(cmd.Flags())

	return cmd
}

// loadConfig merges file values under the flag values: explicit flags win,
// then the config file, then defaults.
func loadConfig(cmd *cobra.Command, configFile string, opts *options.AggregatorOptions) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(commandName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/forgehub/")
	}

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config file: %w", err)
		}
	} else {
		// Log level follows the file across edits without a restart.
		viper.OnConfigChange(func(e fsnotify.Event) {
			log.Info("Config file changed, applying log level", "file", e.Name)
			log.SetLevel(viper.GetString("log.level"))
		})
		viper.WatchConfig()
	}

	return viper.Unmarshal(opts)
}

func run(ctx context.Context, opts *options.AggregatorOptions) error {
	log.Info("Starting aggregation node",
		"factoryID", opts.Node.FactoryID,
		"supervisor", opts.Node.Supervisor,
		"broker", opts.MqttOptions.Broker)

	cfg := opts.MqttOptions.ToClientConfig()
	if cfg.ClientID == "" {
		cfg.ClientID = commandName + "-" + opts.Node.FactoryID
	}
	client, err := mqtt.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mqtt client: %w", err)
	}

	topics := topic.NewBuilder(opts.MqttOptions.TopicRoot)
	transport := mqtttransport.New(cfg.ClientID, opts.Node.FactoryID, client, topics)

	var archiver aggregator.Archiver
	if opts.S3Options.Enabled {
		archive, err := storage.NewSnapshotArchive(opts.S3Options)
		if err != nil {
			return fmt.Errorf("failed to create snapshot archive: %w", err)
		}
		bctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := archive.EnsureBucket(bctx); err != nil {
			return fmt.Errorf("failed to prepare archive bucket: %w", err)
		}
		archiver = archive
	}

	node := aggregator.NewNode(opts.Node, transport, archiver)
	httpSrv := server.NewHttpServer(opts.HttpOptions, node)

	mgr := server.NewManager(transport, node, httpSrv)
	if err := mgr.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	log.Info("Aggregation node stopped")
	return nil
}

// Run executes the command, exiting non-zero on error.
func Run() {
	if err := NewAggregatorCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
