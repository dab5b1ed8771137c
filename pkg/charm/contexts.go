package charm

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/dpdk"
	"github.com/cybercoder/neutron-openvswitch/pkg/pci"
)

// ContextGenerator produces the values one or more config templates are
// rendered from. An empty map means the context is incomplete.
type ContextGenerator interface {
	Resolve() (map[string]interface{}, error)
}

// ContextFunc adapts a function to ContextGenerator.
type ContextFunc func() (map[string]interface{}, error)

func (f ContextFunc) Resolve() (map[string]interface{}, error) { return f() }

// Registry names the generators a resource map refers to.
type Registry map[string]ContextGenerator

// Render merges the named contexts in order; later contexts override
// earlier keys. Unknown names are skipped.
func (r Registry) Render(names []string) (map[string]interface{}, error) {
	ctxt := map[string]interface{}{}
	for _, name := range names {
		gen, ok := r[name]
		if !ok {
			continue
		}
		values, err := gen.Resolve()
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			ctxt[k] = v
		}
	}
	return ctxt, nil
}

func commaList(s string) string {
	return strings.Join(strings.Fields(s), ",")
}

// OVSPluginContext renders the agent settings shared by the neutron, ML2,
// OVS agent and SR-IOV agent configs.
type OVSPluginContext struct {
	Options  *config.Options
	Features Features
}

func (c *OVSPluginContext) Resolve() (map[string]interface{}, error) {
	o := c.Options
	ctxt := map[string]interface{}{
		"core_plugin":         "ml2",
		"neutron_plugin":      "ovs",
		"distributed_routing": c.Features.DVR,
		"enable_dpdk":         o.EnableDPDK,
		"firewall_driver":     FirewallDriver(o.FirewallDriver, o.UbuntuSeries),
	}
	if o.BridgeMappings != "" {
		ctxt["bridge_mappings"] = commaList(o.BridgeMappings)
	}
	if o.SriovDeviceMappings != "" {
		if _, err := config.ParseSriovDeviceMappings(o.SriovDeviceMappings); err != nil {
			return nil, err
		}
		ctxt["sriov_device_mappings"] = commaList(o.SriovDeviceMappings)
	}
	if o.FlatNetworkProviders != "" {
		ctxt["network_providers"] = commaList(o.FlatNetworkProviders)
	}
	if o.VLANRanges != "" {
		if _, err := config.ParseVLANRanges(o.VLANRanges); err != nil {
			return nil, err
		}
		ctxt["vlan_ranges"] = commaList(o.VLANRanges)
	}
	return ctxt, nil
}

// L3AgentContext selects the L3 agent mode.
type L3AgentContext struct {
	Features Features
	ExtPort  string
}

func (c *L3AgentContext) Resolve() (map[string]interface{}, error) {
	if !c.Features.DVR {
		return map[string]interface{}{"agent_mode": "legacy"}, nil
	}
	ctxt := map[string]interface{}{"agent_mode": "dvr"}
	if c.ExtPort == "" {
		ctxt["external_configuration_new"] = true
	}
	return ctxt, nil
}

// BridgeResolver resolves data-port and dpdk-bond-mappings into PCI ordered
// DPDK assignments.
type BridgeResolver interface {
	ResolveBridges(dataPort string) ([]dpdk.Assignment, error)
	ResolveBonds(bondMappings string) ([]dpdk.Assignment, error)
}

// dpdkDevices returns every device handed to DPDK: the bridge ports and the
// bond members, in PCI address order. A device listed twice keeps its
// bridge assignment.
func dpdkDevices(resolver BridgeResolver, dataPort, bondMappings string) ([]dpdk.Assignment, error) {
	bridges, err := resolver.ResolveBridges(dataPort)
	if err != nil {
		return nil, err
	}
	bonds, err := resolver.ResolveBonds(bondMappings)
	if err != nil {
		return nil, err
	}
	devices := lo.UniqBy(append(append([]dpdk.Assignment{}, bridges...), bonds...), func(a dpdk.Assignment) string {
		return a.PCIAddress
	})
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].PCIAddress < devices[j].PCIAddress })
	return devices, nil
}

// DPDKDeviceContext lists the devices bound to the DPDK driver.
type DPDKDeviceContext struct {
	Resolver     BridgeResolver
	DataPort     string
	BondMappings string
	Driver       string
}

func (c *DPDKDeviceContext) Resolve() (map[string]interface{}, error) {
	assignments, err := dpdkDevices(c.Resolver, c.DataPort, c.BondMappings)
	if err != nil {
		return nil, err
	}
	devices := lo.SliceToMap(assignments, func(a dpdk.Assignment) (string, string) { return a.PCIAddress, a.Name })
	return map[string]interface{}{"devices": devices, "driver": c.Driver}, nil
}

// NUMASource lists the NUMA nodes of the host.
type NUMASource interface {
	NUMANodes() ([]pci.NUMANode, error)
}

// OVSDPDKDeviceContext renders the DPDK EAL settings of ovs-vswitchd. It is
// empty until at least one DPDK device resolves.
type OVSDPDKDeviceContext struct {
	Resolver     BridgeResolver
	NUMA         NUMASource
	DataPort     string
	BondMappings string
	EnableDPDK   bool
	SocketMemory int
	SocketCores  int
}

// Settings returns the core mask, socket memory and device whitelist. The
// whitelist covers bridge ports and bond members.
func (c *OVSDPDKDeviceContext) Settings() (cpuMask, socketMemory, whitelist string, err error) {
	assignments, err := dpdkDevices(c.Resolver, c.DataPort, c.BondMappings)
	if err != nil {
		return "", "", "", err
	}
	nodes, err := c.NUMA.NUMANodes()
	if err != nil {
		return "", "", "", err
	}
	return dpdk.CPUMask(nodes, c.SocketCores),
		dpdk.SocketMemory(nodes, c.SocketMemory),
		dpdk.DeviceWhitelist(dpdk.Addresses(assignments)),
		nil
}

func (c *OVSDPDKDeviceContext) Resolve() (map[string]interface{}, error) {
	cpuMask, socketMemory, whitelist, err := c.Settings()
	if err != nil {
		return nil, err
	}
	if whitelist == "" {
		return map[string]interface{}{}, nil
	}
	return map[string]interface{}{
		"dpdk_enabled":     c.EnableDPDK,
		"device_whitelist": whitelist,
		"socket_memory":    socketMemory,
		"cpu_mask":         cpuMask,
	}, nil
}
