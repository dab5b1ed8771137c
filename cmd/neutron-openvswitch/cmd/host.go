package cmd

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/vishvananda/netlink"

	"github.com/cybercoder/neutron-openvswitch/pkg/charm"
	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/dpdk"
	"github.com/cybercoder/neutron-openvswitch/pkg/kv"
	"github.com/cybercoder/neutron-openvswitch/pkg/net_utils"
	"github.com/cybercoder/neutron-openvswitch/pkg/ovs"
	"github.com/cybercoder/neutron-openvswitch/pkg/pci"
	"github.com/cybercoder/neutron-openvswitch/pkg/sriov"
	"github.com/cybercoder/neutron-openvswitch/pkg/topology"
)

// host holds the handles onto the local kernel, sysfs and unit state that
// every command shares.
type host struct {
	opts      *config.Options
	log       logr.Logger
	handle    *netlink.Handle
	sysfs     *pci.Sysfs
	inventory *pci.Inventory
	store     *kv.Store
	dpdk      *dpdk.Resolver
	closers   []func()
}

func openHost(opts *config.Options, log logr.Logger) (_ *host, err error) {
	h := &host{opts: opts, log: log, sysfs: pci.NewSysfs(opts.SysfsRoot)}
	defer func() {
		if err != nil {
			h.Close()
		}
	}()

	if h.handle, err = net_utils.OpenHandle(opts.Netns); err != nil {
		return nil, err
	}
	h.closers = append(h.closers, h.handle.Close)

	source, err := pci.NewHostSource(h.handle, opts.Netns)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, source.Close)

	if h.inventory, err = pci.NewInventory(source, h.sysfs, log); err != nil {
		return nil, err
	}

	if h.store, err = kv.Open(opts.KVPath); err != nil {
		return nil, err
	}
	h.closers = append(h.closers, func() { _ = h.store.Close() })
	h.dpdk = dpdk.NewResolver(h.inventory, h.store, log)
	return h, nil
}

// Close releases the handles in reverse order.
func (h *host) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
	h.closers = nil
}

func (h *host) interfaces() ([]net_utils.NetworkInterface, error) {
	return net_utils.ListInterfaces(h.handle)
}

func (h *host) sriovReconciler() *sriov.Reconciler {
	return &sriov.Reconciler{
		Devices: h.inventory,
		Restarter: &charm.RelationRestarter{
			RelationIDs: h.opts.RelationIDs,
			Run:         charm.ExecRunner,
			Log:         h.log.WithName("relation"),
		},
		Log: h.log,
	}
}

// agent returns an Agent without OVS or service control, enough to resolve
// devices and render contexts.
func (h *host) agent() *charm.Agent {
	return &charm.Agent{
		Options:  h.opts,
		Features: charm.NewFeatures(h.opts),
		SRIOV:    h.sriovReconciler(),
		Resolver: h.dpdk,
		NUMA:     h.sysfs,
		Store:    h.store,
		Log:      h.log,
	}
}

// connectedAgent returns an Agent wired to ovsdb-server and systemd. The
// OVSDB connection is made on first use, after openvswitch-switch has been
// checked and started.
func (h *host) connectedAgent(ctx context.Context) (*charm.Agent, error) {
	a := h.agent()

	client, err := ovs.CreateOVSclient(h.opts.OVSDBEndpoint, h.handle, h.log)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, client.Close)

	services, err := charm.NewSystemdServices(ctx, h.log)
	if err != nil {
		return nil, err
	}
	h.closers = append(h.closers, services.Close)

	a.OVS = client
	a.Services = services
	a.Topology = &topology.Reconciler{
		Switch:     client,
		Services:   services,
		Interfaces: h.interfaces,
		Resolver:   h.dpdk,
		Log:        h.log,
	}
	return a, nil
}
