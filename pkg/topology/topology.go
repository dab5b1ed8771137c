package topology

import (
	"context"
	"strings"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/dpdk"
	"github.com/cybercoder/neutron-openvswitch/pkg/net_utils"
	"github.com/cybercoder/neutron-openvswitch/pkg/ovs"
)

const (
	IntegrationBridge = "br-int"
	ExternalBridge    = "br-ex"

	OVSService       = "openvswitch-switch"
	PhyNICMTUService = "os-charm-phy-nic-mtu"

	// ExternalIDKey marks the bridges and ports this agent manages.
	ExternalIDKey = "charm-neutron-openvswitch"
)

// Switch is the set of idempotent OVS primitives a pass is built from.
type Switch interface {
	AddBridge(ctx context.Context, name, datapathType string, externalIDs map[string]string) error
	AddBridgePort(ctx context.Context, bridge, port string, opts ovs.PortOptions) error
	AddLinuxBridgePort(ctx context.Context, bridge, linuxBridge string, iface ovs.InterfaceData, port ovs.PortData) error
	AddBridgeBond(ctx context.Context, bridge, bond string, port ovs.PortData, interfaces []ovs.BondInterface) error
	EnableIPFIX(ctx context.Context, bridge, target string) error
	DisableIPFIX(ctx context.Context, bridge string) error
	Version(ctx context.Context) (string, error)
	// WaitConnected blocks until the switch answers again after
	// openvswitch-switch was started or restarted.
	WaitConnected(ctx context.Context) error
}

// ServiceManager controls host services.
type ServiceManager interface {
	IsRunning(ctx context.Context, name string) (bool, error)
	Start(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	IsSystemd() bool
}

// DPDKResolver resolves MAC keyed DPDK mappings into PCI ordered
// assignments.
type DPDKResolver interface {
	ResolveBridges(dataPort string) ([]dpdk.Assignment, error)
	ResolveBonds(bondMappings string) ([]dpdk.Assignment, error)
}

// InterfaceLister enumerates the host network interfaces.
type InterfaceLister func() ([]net_utils.NetworkInterface, error)

// Options are the mode flags and mapping strings of one pass.
type Options struct {
	EnableDPDK            bool
	EnableHardwareOffload bool
	EnableDVR             bool
	ExtPort               string
	DataPort              string
	BridgeMappings        string
	DPDKBondMappings      string
	DPDKBondConfig        string
	IPFIXTarget           string
	GlobalPhysnetMTU      int
}

// Reconciler converges the OVS bridge, port and bond topology.
type Reconciler struct {
	Switch     Switch
	Services   ServiceManager
	Interfaces InterfaceLister
	Resolver   DPDKResolver
	Log        logr.Logger
}

// ExternalIDs returns the external ids of a managed row. Bridges are marked
// managed and ports carry the name of their bridge.
func ExternalIDs(bridge string) map[string]string {
	if bridge == "" {
		return map[string]string{ExternalIDKey: "managed"}
	}
	return map[string]string{ExternalIDKey: bridge}
}

// DatapathType returns netdev for DPDK hosts and system otherwise.
func DatapathType(enableDPDK bool) string {
	if enableDPDK {
		return "netdev"
	}
	return "system"
}

// EnsureOVSRunning starts openvswitch-switch when it is not running and
// waits for the switch to accept requests. Nothing talks to the switch
// before this.
func (r *Reconciler) EnsureOVSRunning(ctx context.Context) error {
	running, err := r.Services.IsRunning(ctx, OVSService)
	if err != nil {
		return err
	}
	if running {
		return nil
	}
	r.Log.WithName("topology").Info("starting Open vSwitch", "service", OVSService)
	if err := r.Services.Start(ctx, OVSService); err != nil {
		return err
	}
	return r.Switch.WaitConnected(ctx)
}

// ConfigureOVS runs one reconciliation pass. Calls are issued in dependency
// order and every OVS failure aborts the pass; nothing is rolled back.
// Ports and bridges no longer configured are left in place.
func (r *Reconciler) ConfigureOVS(ctx context.Context, opts Options) error {
	log := r.Log.WithName("topology")

	if err := r.EnsureOVSRunning(ctx); err != nil {
		return err
	}

	datapath := DatapathType(opts.EnableDPDK)
	for _, br := range []string{IntegrationBridge, ExternalBridge} {
		if err := r.Switch.AddBridge(ctx, br, datapath, ExternalIDs("")); err != nil {
			return err
		}
	}

	if opts.EnableDVR && opts.ExtPort != "" {
		if err := r.attachExternalPort(ctx, opts.ExtPort); err != nil {
			return err
		}
	}

	var physBridges []string
	var err error
	if !opts.EnableDPDK {
		if physBridges, err = r.configureBridgeMappings(ctx, opts, datapath); err != nil {
			return err
		}
	}

	switch {
	case opts.EnableDPDK && opts.EnableHardwareOffload:
		log.Error(common.NewMutualExclusionConflict("DPDK and hardware offload are mutually exclusive"),
			"please disable enable-dpdk or enable-hardware-offload")
	case opts.EnableDPDK:
		if physBridges, err = r.configureDPDK(ctx, opts, datapath); err != nil {
			return err
		}
	}

	bridges := lo.Uniq(append([]string{IntegrationBridge, ExternalBridge}, physBridges...))
	for _, br := range bridges {
		if err := r.Switch.DisableIPFIX(ctx, br); err != nil {
			return err
		}
		if opts.IPFIXTarget != "" {
			if err := r.Switch.EnableIPFIX(ctx, br, opts.IPFIXTarget); err != nil {
				return err
			}
		}
	}

	if !r.Services.IsSystemd() {
		if err := r.Services.Restart(ctx, PhyNICMTUService); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) attachExternalPort(ctx context.Context, extPort string) error {
	inventory, err := r.Interfaces()
	if err != nil {
		return err
	}
	for _, token := range strings.Fields(extPort) {
		port, ok := net_utils.ResolvePort(token, inventory)
		if !ok {
			r.Log.Info("external port not resolved", "reason", common.NewDeviceResolutionMiss(token).Error())
			continue
		}
		ids := ExternalIDs(ExternalBridge)
		return r.Switch.AddBridgePort(ctx, ExternalBridge, port, ovs.PortOptions{
			Interface: ovs.InterfaceData{ExternalIDs: ids},
			Port:      ovs.PortData{ExternalIDs: ids},
			LinkUp:    true,
		})
	}
	return nil
}

// configureBridgeMappings creates the physical network bridges and attaches
// the resolved data ports to them.
func (r *Reconciler) configureBridgeMappings(ctx context.Context, opts Options, datapath string) ([]string, error) {
	mappings, err := config.ParseBridgeMappings(opts.BridgeMappings)
	if err != nil {
		return nil, err
	}
	portPairs, err := config.ParseDataPortMappings(opts.DataPort)
	if err != nil {
		return nil, err
	}

	var inventory []net_utils.NetworkInterface
	var ports []config.Pair
	if len(portPairs) > 0 {
		if inventory, err = r.Interfaces(); err != nil {
			return nil, err
		}
		ports = net_utils.ResolvePortMappings(portPairs, inventory, r.Log)
	}

	bridges := lo.Uniq(lo.Map(mappings, func(p config.Pair, _ int) string { return p.Value }))
	for _, br := range bridges {
		if err := r.Switch.AddBridge(ctx, br, datapath, ExternalIDs("")); err != nil {
			return nil, err
		}
		ids := ExternalIDs(br)
		for _, p := range ports {
			if p.Value != br {
				continue
			}
			if net_utils.IsLinuxBridgeInterface(p.Key, inventory) {
				err = r.Switch.AddLinuxBridgePort(ctx, br, p.Key,
					ovs.InterfaceData{ExternalIDs: ids}, ovs.PortData{ExternalIDs: ids})
			} else {
				err = r.Switch.AddBridgePort(ctx, br, p.Key, ovs.PortOptions{
					Interface: ovs.InterfaceData{ExternalIDs: ids},
					Port:      ovs.PortData{ExternalIDs: ids},
					LinkUp:    true,
					Promisc:   true,
				})
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return bridges, nil
}

// configureDPDK creates a bridge and DPDK port per resolved device in PCI
// order, then the bonds when OVS supports late init. It returns every bridge
// carrying a DPDK port or bond.
func (r *Reconciler) configureDPDK(ctx context.Context, opts Options, datapath string) ([]string, error) {
	log := r.Log.WithName("topology")
	bondsConfig, err := dpdk.ParseBondsConfig(opts.DPDKBondConfig)
	if err != nil {
		return nil, err
	}
	version, err := r.Switch.Version(ctx)
	if err != nil {
		return nil, err
	}
	lateInit := ovs.HasLateDPDKInit(version)
	mtu := opts.GlobalPhysnetMTU

	assignments, err := r.Resolver.ResolveBridges(opts.DataPort)
	if err != nil {
		return nil, err
	}
	log.V(1).Info("resolved DPDK bridges", "assignments", assignments)

	for index, a := range assignments {
		if err := r.Switch.AddBridge(ctx, a.Name, datapath, ExternalIDs("")); err != nil {
			return nil, err
		}
		port := dpdk.PortName(a.PCIAddress, index, lateInit)
		log.V(1).Info("adding DPDK port", "bridge", a.Name, "port", port, "pci", a.PCIAddress)
		ids := ExternalIDs(a.Name)
		err := r.Switch.AddBridgePort(ctx, a.Name, port, ovs.PortOptions{
			Interface: dpdk.PortInterfaceData(a.PCIAddress, mtu, lateInit, ids),
			Port:      ovs.PortData{ExternalIDs: ids},
		})
		if err != nil {
			return nil, err
		}
	}
	bridges := lo.Uniq(lo.Map(assignments, func(a dpdk.Assignment, _ int) string { return a.Name }))

	if !lateInit {
		return bridges, nil
	}

	bonds, err := r.Resolver.ResolveBonds(opts.DPDKBondMappings)
	if err != nil {
		return nil, err
	}
	portPairs, err := config.ParseDataPortMappings(opts.DataPort)
	if err != nil {
		return nil, err
	}
	portmap := lo.SliceToMap(portPairs, func(p config.Pair) (string, string) { return p.Key, p.Value })

	var bridgeBonds dpdk.BridgeBondMap
	for _, a := range bonds {
		br, ok := portmap[a.Name]
		if !ok {
			continue
		}
		if err := r.Switch.AddBridge(ctx, br, datapath, ExternalIDs("")); err != nil {
			return nil, err
		}
		bridgeBonds.AddPort(br, a.Name, dpdk.HashedPortName(a.PCIAddress), a.PCIAddress)
	}

	for _, item := range bridgeBonds.Items() {
		ids := ExternalIDs(item.Bridge)
		for _, bond := range item.Bonds {
			policy := bondsConfig.GetBondConfig(bond.Name)
			log.V(1).Info("adding DPDK bond", "bridge", item.Bridge, "bond", bond.Name, "policy", policy)
			err := r.Switch.AddBridgeBond(ctx, item.Bridge, bond.Name,
				dpdk.BondPortData(policy, ids), dpdk.BondInterfaces(bond.Ports, mtu, ids))
			if err != nil {
				return nil, err
			}
		}
		bridges = append(bridges, item.Bridge)
	}
	return lo.Uniq(bridges), nil
}
