package config

import (
	"os"
	"strings"

	perrors "github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultConfigPath is where the charm hooks drop the merged charm config and
// relation settings.
const DefaultConfigPath = "/var/lib/neutron-openvswitch/config.yaml"

// EnvPrefix prefixes environment overrides, e.g. NEUTRON_OVS_ENABLE_DPDK.
const EnvPrefix = "NEUTRON_OVS"

// Options models the charm options and the relation-derived settings that
// drive a reconciliation pass.
type Options struct {
	DataPort              string `mapstructure:"data-port"`
	BridgeMappings        string `mapstructure:"bridge-mappings"`
	VLANRanges            string `mapstructure:"vlan-ranges"`
	FlatNetworkProviders  string `mapstructure:"flat-network-providers"`
	ExtPort               string `mapstructure:"ext-port"`
	EnableDPDK            bool   `mapstructure:"enable-dpdk"`
	EnableHardwareOffload bool   `mapstructure:"enable-hardware-offload"`
	EnableSRIOV           bool   `mapstructure:"enable-sriov"`
	SriovNumVFs           string `mapstructure:"sriov-numvfs"`
	SriovDeviceMappings   string `mapstructure:"sriov-device-mappings"`
	DPDKBondMappings      string `mapstructure:"dpdk-bond-mappings"`
	DPDKBondConfig        string `mapstructure:"dpdk-bond-config"`
	DPDKSocketMemory      int    `mapstructure:"dpdk-socket-memory"`
	DPDKSocketCores       int    `mapstructure:"dpdk-socket-cores"`
	DPDKDriver            string `mapstructure:"dpdk-driver"`
	IPFIXTarget           string `mapstructure:"ipfix-target"`
	EnableLocalDHCP       bool   `mapstructure:"enable-local-dhcp-and-metadata"`
	FirewallDriver        string `mapstructure:"firewall-driver"`
	OpenStackRelease      string `mapstructure:"openstack-release"`
	UbuntuSeries          string `mapstructure:"ubuntu-series"`
	InContainer           bool   `mapstructure:"in-container"`

	// Settings published by neutron-api on the neutron-plugin-api relation.
	EnableDVR        bool `mapstructure:"enable-dvr"`
	EnableL3HA       bool `mapstructure:"enable-l3ha"`
	GlobalPhysnetMTU int  `mapstructure:"global-physnet-mtu"`

	// Runtime settings.
	OVSDBEndpoint string   `mapstructure:"ovsdb-endpoint"`
	KVPath        string   `mapstructure:"kv-path"`
	Netns         string   `mapstructure:"netns"`
	SysfsRoot     string   `mapstructure:"sysfs-root"`
	RelationIDs   []string `mapstructure:"relation-ids"`
}

var defaults = map[string]interface{}{
	"data-port":                      "",
	"bridge-mappings":                "physnet1:br-data",
	"vlan-ranges":                    "physnet1:1000:2000",
	"sriov-numvfs":                   "auto",
	"dpdk-socket-memory":             1024,
	"dpdk-socket-cores":              1,
	"dpdk-driver":                    "",
	"firewall-driver":                "iptables_hybrid",
	"openstack-release":              "ussuri",
	"ubuntu-series":                  "focal",
	"global-physnet-mtu":             1500,
	"ovsdb-endpoint":                 "unix:/var/run/openvswitch/db.sock",
	"kv-path":                        "/var/lib/neutron-openvswitch/unitdata.db",
	"sysfs-root":                     "/sys",
	"enable-local-dhcp-and-metadata": false,
}

// New returns a viper instance carrying the option defaults and the
// environment override rules.
func New() *viper.Viper {
	cfg := viper.New()
	for key, value := range defaults {
		cfg.SetDefault(key, value)
	}
	cfg.SetEnvPrefix(EnvPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()
	return cfg
}

// Load reads path into cfg and decodes the result. A missing file leaves the
// defaults in place.
func Load(cfg *viper.Viper, path string) (*Options, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			cfg.SetConfigFile(path)
			if err := cfg.ReadInConfig(); err != nil {
				return nil, perrors.Wrapf(err, "failed to read config file %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, perrors.Wrapf(err, "failed to stat config file %s", path)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about.
	for key := range defaults {
		_ = cfg.BindEnv(key)
	}
	for _, key := range []string{"enable-dpdk", "enable-hardware-offload", "enable-sriov",
		"enable-dvr", "enable-l3ha", "ext-port", "ipfix-target", "dpdk-bond-mappings",
		"dpdk-bond-config", "sriov-device-mappings", "flat-network-providers", "netns",
		"relation-ids", "in-container"} {
		_ = cfg.BindEnv(key)
	}

	opts := &Options{}
	if err := cfg.Unmarshal(opts); err != nil {
		return nil, perrors.Wrap(err, "failed to decode configuration")
	}
	return opts, nil
}
