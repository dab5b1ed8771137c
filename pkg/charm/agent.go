package charm

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/dpdk"
	"github.com/cybercoder/neutron-openvswitch/pkg/ovs"
	"github.com/cybercoder/neutron-openvswitch/pkg/sriov"
	"github.com/cybercoder/neutron-openvswitch/pkg/topology"
)

// sriovNumVFsKey records the last applied sriov-numvfs.
const sriovNumVFsKey = "sriov-numvfs"

// OVSSettings reads and writes the Open_vSwitch root row.
type OVSSettings interface {
	Version(ctx context.Context) (string, error)
	SetOtherConfig(ctx context.Context, values []ovs.KeyValue) (bool, error)
	WaitConnected(ctx context.Context) error
}

// Store persists values between hook runs.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Flush() error
}

// Agent drives the config-changed flow of a unit.
type Agent struct {
	Options  *config.Options
	Features Features
	OVS      OVSSettings
	Services topology.ServiceManager
	Topology *topology.Reconciler
	SRIOV    *sriov.Reconciler
	Resolver BridgeResolver
	NUMA     NUMASource
	Store    Store
	Log      logr.Logger
}

// TopologyOptions maps the unit options onto a reconciliation pass.
func (a *Agent) TopologyOptions() topology.Options {
	o := a.Options
	return topology.Options{
		EnableDPDK:            a.Features.DPDK,
		EnableHardwareOffload: a.Features.HardwareOffload,
		EnableDVR:             a.Features.DVR,
		ExtPort:               o.ExtPort,
		DataPort:              o.DataPort,
		BridgeMappings:        o.BridgeMappings,
		DPDKBondMappings:      o.DPDKBondMappings,
		DPDKBondConfig:        o.DPDKBondConfig,
		IPFIXTarget:           o.IPFIXTarget,
		GlobalPhysnetMTU:      o.GlobalPhysnetMTU,
	}
}

func (a *Agent) ovsDPDKContext() *OVSDPDKDeviceContext {
	return &OVSDPDKDeviceContext{
		Resolver:     a.Resolver,
		NUMA:         a.NUMA,
		DataPort:     a.Options.DataPort,
		BondMappings: a.Options.DPDKBondMappings,
		EnableDPDK:   a.Options.EnableDPDK,
		SocketMemory: a.Options.DPDKSocketMemory,
		SocketCores:  a.Options.DPDKSocketCores,
	}
}

func (a *Agent) dpdkDeviceContext() *DPDKDeviceContext {
	return &DPDKDeviceContext{
		Resolver:     a.Resolver,
		DataPort:     a.Options.DataPort,
		BondMappings: a.Options.DPDKBondMappings,
		Driver:       a.Options.DPDKDriver,
	}
}

// Contexts returns the context generators of the unit.
func (a *Agent) Contexts() Registry {
	return Registry{
		OVSPluginCtx:     &OVSPluginContext{Options: a.Options, Features: a.Features},
		L3AgentCtx:       &L3AgentContext{Features: a.Features, ExtPort: a.Options.ExtPort},
		DPDKDeviceCtx:    a.dpdkDeviceContext(),
		OVSDPDKDeviceCtx: a.ovsDPDKContext(),
	}
}

// RenderContexts resolves the contexts of every managed config file.
func (a *Agent) RenderContexts() (map[string]map[string]interface{}, error) {
	registry := a.Contexts()
	rendered := map[string]map[string]interface{}{}
	for _, r := range ResourceMap(a.Features) {
		ctxt, err := registry.Render(r.Contexts)
		if err != nil {
			return nil, err
		}
		rendered[r.Path] = ctxt
	}
	return rendered, nil
}

// EnableDPDK writes the DPDK EAL settings into Open_vSwitch other_config
// and restarts openvswitch-switch when a value changed. OVS without late
// DPDK init reads them from its defaults file instead.
func (a *Agent) EnableDPDK(ctx context.Context) (bool, error) {
	version, err := a.OVS.Version(ctx)
	if err != nil {
		return false, err
	}
	if !ovs.HasLateDPDKInit(version) {
		return false, nil
	}
	cpuMask, socketMemory, whitelist, err := a.ovsDPDKContext().Settings()
	if err != nil {
		return false, err
	}
	values := dpdk.OtherConfig(cpuMask, socketMemory, whitelist, ovs.VhostUserClient(version))
	return a.setOtherConfig(ctx, values)
}

// EnableHardwareOffload turns on OVS hardware offload.
func (a *Agent) EnableHardwareOffload(ctx context.Context) (bool, error) {
	return a.setOtherConfig(ctx, []ovs.KeyValue{
		{Key: "hw-offload", Value: "true"},
		{Key: "max-idle", Value: "30000"},
	})
}

func (a *Agent) setOtherConfig(ctx context.Context, values []ovs.KeyValue) (bool, error) {
	changed, err := a.OVS.SetOtherConfig(ctx, values)
	if err != nil || !changed {
		return changed, err
	}
	a.Log.Info("Open_vSwitch other_config changed", "keys", lo.Map(values, func(kv ovs.KeyValue, _ int) string { return kv.Key }))
	if err := a.Services.Restart(ctx, topology.OVSService); err != nil {
		return true, err
	}
	// The restart drops the ovsdb-server connection.
	return true, a.OVS.WaitConnected(ctx)
}

// ConfigureSRIOV applies sriov-numvfs when it differs from the value last
// applied, or always with force. The applied value is recorded after a
// successful pass.
func (a *Agent) ConfigureSRIOV(ctx context.Context, force bool) (bool, error) {
	if !a.Features.SRIOV {
		return false, nil
	}
	numvfs := a.Options.SriovNumVFs
	previous, found, err := a.Store.Get(sriovNumVFsKey)
	if err != nil {
		return false, err
	}
	if !force && found && previous == numvfs {
		a.Log.V(1).Info("sriov-numvfs unchanged", "value", numvfs)
		return false, nil
	}
	changed, err := a.SRIOV.ConfigureSRIOV(ctx, numvfs)
	if err != nil {
		return changed, err
	}
	if err := a.Store.Set(sriovNumVFsKey, numvfs); err != nil {
		return changed, err
	}
	return changed, a.Store.Flush()
}

// ConfigChanged runs the config-changed flow: make sure OVS runs, then OVS
// host settings, the topology pass and SR-IOV VFs.
func (a *Agent) ConfigChanged(ctx context.Context) error {
	log := a.Log.WithName("config-changed")
	if err := a.Topology.EnsureOVSRunning(ctx); err != nil {
		return err
	}
	if a.Features.DPDK {
		if _, err := a.EnableDPDK(ctx); err != nil {
			return err
		}
	}
	if a.Features.HardwareOffload {
		if _, err := a.EnableHardwareOffload(ctx); err != nil {
			return err
		}
	}
	if err := a.Topology.ConfigureOVS(ctx, a.TopologyOptions()); err != nil {
		return err
	}
	changed, err := a.ConfigureSRIOV(ctx, false)
	if err != nil {
		return err
	}
	log.V(1).Info("config-changed complete", "sriovChanged", changed)
	return nil
}
