package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configureOVSCmd = &cobra.Command{
	Use:   "configure-ovs",
	Short: "Converge the OVS bridges, ports and bonds",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHost(options, logger)
		if err != nil {
			return err
		}
		defer h.Close()

		a, err := h.connectedAgent(cmd.Context())
		if err != nil {
			return err
		}
		return a.Topology.ConfigureOVS(cmd.Context(), a.TopologyOptions())
	},
}

var forceSRIOV bool

var configureSRIOVCmd = &cobra.Command{
	Use:   "configure-sriov",
	Short: "Apply sriov-numvfs to the SR-IOV devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHost(options, logger)
		if err != nil {
			return err
		}
		defer h.Close()

		changed, err := h.agent().ConfigureSRIOV(cmd.Context(), forceSRIOV)
		if err != nil {
			return err
		}
		fmt.Printf("changed: %t\n", changed)
		return nil
	},
}

var configChangedCmd = &cobra.Command{
	Use:   "config-changed",
	Short: "Run the full configuration flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHost(options, logger)
		if err != nil {
			return err
		}
		defer h.Close()

		a, err := h.connectedAgent(cmd.Context())
		if err != nil {
			return err
		}
		return a.ConfigChanged(cmd.Context())
	},
}

func init() {
	configureSRIOVCmd.Flags().BoolVar(&forceSRIOV, "force", false, "apply even if sriov-numvfs did not change")
	rootCmd.AddCommand(configureOVSCmd, configureSRIOVCmd, configChangedCmd)
}
