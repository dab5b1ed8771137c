package charm

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/cybercoder/neutron-openvswitch/pkg/config"
)

func paths(resources []Resource) []string {
	return lo.Map(resources, func(r Resource, _ int) string { return r.Path })
}

func TestReleaseOrdering(t *testing.T) {
	assert.True(t, OpenStackAtLeast("mitaka", "mitaka"))
	assert.True(t, OpenStackAtLeast("ussuri", "stein"))
	assert.False(t, OpenStackAtLeast("liberty", "mitaka"))
	assert.False(t, OpenStackAtLeast("", "mitaka"))
	assert.True(t, SeriesAtLeast("focal", "xenial"))
	assert.False(t, SeriesAtLeast("trusty", "xenial"))
}

func TestNewFeatures(t *testing.T) {
	opts := &config.Options{
		EnableDVR:             true,
		EnableL3HA:            true,
		EnableLocalDHCP:       true,
		EnableDPDK:            true,
		EnableHardwareOffload: true,
		EnableSRIOV:           true,
		OpenStackRelease:      "queens",
		UbuntuSeries:          "bionic",
	}
	f := NewFeatures(opts)
	assert.True(t, f.DVR)
	assert.True(t, f.DPDK)
	assert.False(t, f.HardwareOffload, "hardware offload needs stein")
	assert.True(t, f.SRIOV)

	opts.InContainer = true
	opts.UbuntuSeries = "trusty"
	opts.OpenStackRelease = "liberty"
	f = NewFeatures(opts)
	assert.False(t, f.DVR)
	assert.False(t, f.L3HA)
	assert.False(t, f.LocalDHCP)
	assert.False(t, f.DPDK)
	assert.False(t, f.SRIOV)
	assert.False(t, f.NovaMetadata())
}

func TestFirewallDriver(t *testing.T) {
	tests := []struct {
		driver   string
		series   string
		expected string
	}{
		{"", "focal", IptablesHybrid},
		{"openvswitch", "focal", OpenvSwitch},
		{"openvswitch", "trusty", IptablesHybrid},
		{"noop", "focal", IptablesHybrid},
		{"iptables_hybrid", "focal", IptablesHybrid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FirewallDriver(tt.driver, tt.series), "%s on %s", tt.driver, tt.series)
	}
}

func TestResourceMapDefaults(t *testing.T) {
	f := Features{Release: "ussuri", Series: "focal"}
	resources := ResourceMap(f)
	assert.Equal(t, []string{NeutronConf, OVSConf, OVSDefault}, paths(resources))
	assert.Equal(t, []string{"neutron-openvswitch-agent"}, resources[0].Services)
	assert.Equal(t, []string{"neutron-openvswitch-agent", "openvswitch-switch"}, Services(f))
}

func TestResourceMapDPDK(t *testing.T) {
	rm := RestartMap(Features{DPDK: true, Release: "ussuri", Series: "focal"})
	assert.Equal(t, []string{"dpdk", "openvswitch-switch"}, rm[DPDKInterfaces])
}

func TestResourceMapBeforeMitaka(t *testing.T) {
	f := Features{Release: "kilo", Series: "trusty"}
	resources := ResourceMap(f)
	assert.Equal(t, []string{NeutronConf, ML2Conf, OVSDefault, PhyNICMTUConf}, paths(resources))
	assert.Equal(t, []string{"neutron-plugin-openvswitch-agent"}, resources[0].Services)
	assert.Equal(t, []string{"neutron-plugin-openvswitch-agent", "openvswitch-switch"}, Services(f))
}

func TestResourceMapDVRAndLocalDHCP(t *testing.T) {
	resources := ResourceMap(Features{DVR: true, LocalDHCP: true, Release: "ussuri", Series: "focal"})
	assert.Equal(t, []string{
		NeutronConf, OVSConf, OVSDefault,
		NeutronL3AgentConf, NeutronFWaaSConf,
		NeutronMetadataConf, NeutronDHCPAgentConf, NeutronDnsmasqConf,
	}, paths(resources))
	assert.Equal(t, []string{
		"neutron-metadata-agent", "neutron-l3-agent", "neutron-dhcp-agent", "neutron-openvswitch-agent",
	}, resources[0].Services)
}

func TestResourceMapSRIOV(t *testing.T) {
	rm := RestartMap(Features{SRIOV: true, Release: "ussuri", Series: "focal"})
	assert.Equal(t, []string{"neutron-sriov-agent"}, rm[NeutronSriovAgentConf])
	assert.Contains(t, rm[NeutronConf], "neutron-sriov-agent")
	assert.Empty(t, rm[SriovNetplanShimConf])
	assert.Contains(t, rm, SriovNetplanShimConf)

	rm = RestartMap(Features{SRIOV: true, Release: "liberty", Series: "xenial"})
	assert.Equal(t, []string{"neutron-plugin-sriov-agent"}, rm[NeutronSriovAgentConf])

	rm = RestartMap(Features{HardwareOffload: true, Release: "ussuri", Series: "focal"})
	assert.NotContains(t, rm, NeutronSriovAgentConf)
	assert.Contains(t, rm, SriovNetplanShimConf)
}

func TestResourceMapIsFresh(t *testing.T) {
	f := Features{Release: "ussuri", Series: "focal"}
	first := ResourceMap(f)
	first[0].Services[0] = "changed"
	assert.Equal(t, "neutron-openvswitch-agent", ResourceMap(f)[0].Services[0])
}
