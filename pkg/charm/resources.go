package charm

import (
	"sort"

	"github.com/samber/lo"
)

const (
	NeutronConf             = "/etc/neutron/neutron.conf"
	ML2Conf                 = "/etc/neutron/plugins/ml2/ml2_conf.ini"
	OVSConf                 = "/etc/neutron/plugins/ml2/openvswitch_agent.ini"
	OVSDefault              = "/etc/default/openvswitch-switch"
	DPDKInterfaces          = "/etc/dpdk/interfaces"
	PhyNICMTUConf           = "/etc/init/os-charm-phy-nic-mtu.conf"
	NeutronMetadataConf     = "/etc/neutron/metadata_agent.ini"
	NeutronDHCPAgentConf    = "/etc/neutron/dhcp_agent.ini"
	NeutronDnsmasqConf      = "/etc/neutron/dnsmasq.conf"
	NeutronL3AgentConf      = "/etc/neutron/l3_agent.ini"
	NeutronFWaaSConf        = "/etc/neutron/fwaas_driver.ini"
	ExtPortConf             = "/etc/init/ext-port.conf"
	NeutronSriovAgentConf   = "/etc/neutron/plugins/ml2/sriov_agent.ini"
	SriovNetplanShimConf    = "/etc/sriov-netplan-shim/interfaces.yaml"
	legacyOVSAgentService   = "neutron-plugin-openvswitch-agent"
	ovsAgentService         = "neutron-openvswitch-agent"
	legacySriovAgentService = "neutron-plugin-sriov-agent"
	sriovAgentService       = "neutron-sriov-agent"
	phyNICMTUService        = "os-charm-phy-nic-mtu"
)

// Context names, resolved through a Registry.
const (
	OVSPluginCtx     = "ovs-plugin"
	RemoteRestartCtx = "remote-restart"
	OVSDPDKDeviceCtx = "ovs-dpdk-device"
	DPDKDeviceCtx    = "dpdk-device"
	PhyNICMTUCtx     = "phy-nic-mtu"
	SharedSecretCtx  = "shared-secret"
	DHCPAgentCtx     = "dhcp-agent"
	L3AgentCtx       = "l3-agent"
	ExternalPortCtx  = "external-port"
	SriovDeviceCtx   = "sriov-device"
)

// Resource is a managed config file with the services restarted when it
// changes and the contexts it is rendered from.
type Resource struct {
	Path     string
	Services []string
	Contexts []string
}

func baseResources() []Resource {
	return []Resource{
		{Path: NeutronConf, Services: []string{legacyOVSAgentService}, Contexts: []string{OVSPluginCtx, RemoteRestartCtx}},
		{Path: ML2Conf, Services: []string{legacyOVSAgentService}, Contexts: []string{OVSPluginCtx}},
		{Path: OVSConf, Services: []string{ovsAgentService}, Contexts: []string{OVSPluginCtx}},
		{Path: OVSDefault, Services: []string{"openvswitch-switch"}, Contexts: []string{OVSDPDKDeviceCtx, OVSPluginCtx, RemoteRestartCtx}},
		{Path: DPDKInterfaces, Services: []string{"dpdk", "openvswitch-switch"}, Contexts: []string{DPDKDeviceCtx}},
		{Path: PhyNICMTUConf, Services: []string{phyNICMTUService}, Contexts: []string{PhyNICMTUCtx}},
	}
}

var (
	metadataResources = []Resource{
		{Path: NeutronMetadataConf, Services: []string{"neutron-metadata-agent"}, Contexts: []string{SharedSecretCtx}},
	}
	dhcpResources = []Resource{
		{Path: NeutronDHCPAgentConf, Services: []string{"neutron-dhcp-agent"}, Contexts: []string{DHCPAgentCtx}},
		{Path: NeutronDnsmasqConf, Services: []string{"neutron-dhcp-agent"}, Contexts: []string{DHCPAgentCtx}},
	}
	dvrResources = []Resource{
		{Path: NeutronL3AgentConf, Services: []string{"neutron-l3-agent"}, Contexts: []string{L3AgentCtx}},
		{Path: NeutronFWaaSConf, Services: []string{"neutron-l3-agent"}, Contexts: []string{L3AgentCtx}},
		{Path: ExtPortConf, Services: []string{"neutron-l3-agent"}, Contexts: []string{ExternalPortCtx}},
	}
)

// resourceTable keeps insertion order; updating an existing path replaces
// its entry in place.
type resourceTable struct {
	entries []Resource
}

func (t *resourceTable) update(resources ...Resource) {
	for _, r := range resources {
		r.Services = append([]string(nil), r.Services...)
		r.Contexts = append([]string(nil), r.Contexts...)
		if _, i, ok := lo.FindIndexOf(t.entries, func(e Resource) bool { return e.Path == r.Path }); ok {
			t.entries[i] = r
			continue
		}
		t.entries = append(t.entries, r)
	}
}

func (t *resourceTable) get(path string) *Resource {
	for i := range t.entries {
		if t.entries[i].Path == path {
			return &t.entries[i]
		}
	}
	return nil
}

func (t *resourceTable) drop(paths ...string) {
	t.entries = lo.Reject(t.entries, func(e Resource, _ int) bool { return lo.Contains(paths, e.Path) })
}

// ResourceMap returns the config files managed for f in registration order.
// Every call builds a fresh table.
func ResourceMap(f Features) []Resource {
	t := &resourceTable{}
	t.update(baseResources()...)
	neutron := func() *Resource { return t.get(NeutronConf) }

	if f.DVR {
		t.update(dvrResources...)
		t.update(metadataResources...)
		neutron().Services = append(neutron().Services, "neutron-metadata-agent", "neutron-l3-agent")
	}
	if f.LocalDHCP {
		t.update(metadataResources...)
		t.update(dhcpResources...)
		neutron().Services = append(neutron().Services, "neutron-metadata-agent", "neutron-dhcp-agent")
	}

	var drop []string
	if OpenStackAtLeast(f.Release, "mitaka") {
		drop = append(drop, ML2Conf)
		n := neutron()
		n.Services = append(lo.Without(n.Services, legacyOVSAgentService), ovsAgentService)
		if !f.DPDK {
			drop = append(drop, DPDKInterfaces)
		}
	} else {
		drop = append(drop, OVSConf, DPDKInterfaces)
	}

	if f.SRIOV {
		agent := sriovAgentService
		if !OpenStackAtLeast(f.Release, "mitaka") {
			agent = legacySriovAgentService
		}
		t.update(Resource{Path: NeutronSriovAgentConf, Services: []string{agent}, Contexts: []string{OVSPluginCtx}})
		neutron().Services = append(neutron().Services, agent)
	}
	if f.SRIOV || f.HardwareOffload {
		// Applied at boot only, so no services restart on change.
		t.update(Resource{Path: SriovNetplanShimConf, Contexts: []string{SriovDeviceCtx}})
	}

	if SeriesAtLeast(f.Series, "xenial") {
		drop = append(drop, ExtPortConf, PhyNICMTUConf)
	}
	t.drop(drop...)

	for i := range t.entries {
		t.entries[i].Services = lo.Uniq(t.entries[i].Services)
	}
	return t.entries
}

// RestartMap returns the services to restart per config file.
func RestartMap(f Features) map[string][]string {
	return lo.SliceToMap(ResourceMap(f), func(r Resource) (string, []string) { return r.Path, r.Services })
}

// Services returns the sorted unique services managed for f. The phy-nic-mtu
// job is not a running service and is left out.
func Services(f Features) []string {
	var all []string
	for _, r := range ResourceMap(f) {
		all = append(all, r.Services...)
	}
	services := lo.Without(lo.Uniq(all), phyNICMTUService)
	sort.Strings(services)
	return services
}
