package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cybercoder/neutron-openvswitch/pkg/config"
)

var (
	configPath string
	debug      bool

	logger  = logr.Discard()
	options *config.Options
)

var rootCmd = &cobra.Command{
	Use:   "neutron-openvswitch",
	Short: "Configures Open vSwitch, DPDK and SR-IOV for a Neutron compute node.",
	Long: `This tool converges the local Open vSwitch bridges, ports and bonds,
the DPDK host settings and the SR-IOV VF counts of a Neutron Open vSwitch
agent unit from its charm configuration. Every command is safe to re-run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(debug)
		opts, err := config.Load(config.New(), configPath)
		if err != nil {
			return err
		}
		options = opts
		return nil
	},
}

func newLogger(debug bool) logr.Logger {
	var zl *zap.Logger
	var err error
	if debug {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "charm configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable development logging")
}
