package cmd

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/dpdk"
	"github.com/cybercoder/neutron-openvswitch/pkg/net_utils"
)

type assignment struct {
	PCIAddress string `json:"pciAddress"`
	Name       string `json:"name"`
}

type portMapping struct {
	Port   string `json:"port"`
	Bridge string `json:"bridge"`
}

type resolution struct {
	DataPorts   []portMapping `json:"dataPorts,omitempty"`
	DPDKBridges []assignment  `json:"dpdkBridges,omitempty"`
	DPDKBonds   []assignment  `json:"dpdkBonds,omitempty"`
}

func toAssignments(in []dpdk.Assignment) []assignment {
	return lo.Map(in, func(a dpdk.Assignment, _ int) assignment {
		return assignment{PCIAddress: a.PCIAddress, Name: a.Name}
	})
}

func printYAML(v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the data ports and DPDK devices the configuration resolves to",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHost(options, logger)
		if err != nil {
			return err
		}
		defer h.Close()

		var result resolution
		if options.EnableDPDK {
			bridges, err := h.dpdk.ResolveBridges(options.DataPort)
			if err != nil {
				return err
			}
			bonds, err := h.dpdk.ResolveBonds(options.DPDKBondMappings)
			if err != nil {
				return err
			}
			result.DPDKBridges = toAssignments(bridges)
			result.DPDKBonds = toAssignments(bonds)
			return printYAML(result)
		}

		pairs, err := config.ParseDataPortMappings(options.DataPort)
		if err != nil {
			return err
		}
		inventory, err := h.interfaces()
		if err != nil {
			return err
		}
		for _, p := range net_utils.ResolvePortMappings(pairs, inventory, logger) {
			result.DataPorts = append(result.DataPorts, portMapping{Port: p.Key, Bridge: p.Value})
		}
		return printYAML(result)
	},
}

var renderContextsCmd = &cobra.Command{
	Use:   "render-contexts",
	Short: "Print the template contexts of every managed config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHost(options, logger)
		if err != nil {
			return err
		}
		defer h.Close()

		rendered, err := h.agent().RenderContexts()
		if err != nil {
			return err
		}
		return printYAML(rendered)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd, renderContextsCmd)
}
