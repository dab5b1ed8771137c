package charm

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/dpdk"
	"github.com/cybercoder/neutron-openvswitch/pkg/net_utils"
	"github.com/cybercoder/neutron-openvswitch/pkg/ovs"
	"github.com/cybercoder/neutron-openvswitch/pkg/pci"
	"github.com/cybercoder/neutron-openvswitch/pkg/sriov"
	"github.com/cybercoder/neutron-openvswitch/pkg/topology"
)

// calls is shared by the fakes so the ordering across collaborators can be
// asserted.
type calls []string

var errSwitchDown = errors.New("not connected")

// fakeOVS refuses every request while down, the way a client does between
// an openvswitch-switch (re)start and its reconnection.
type fakeOVS struct {
	log         *calls
	version     string
	otherConfig map[string]string
	down        bool
}

func (f *fakeOVS) WaitConnected(context.Context) error {
	*f.log = append(*f.log, "wait-connected")
	f.down = false
	return nil
}

func (f *fakeOVS) Version(context.Context) (string, error) {
	if f.down {
		return "", errSwitchDown
	}
	return f.version, nil
}

func (f *fakeOVS) SetOtherConfig(_ context.Context, values []ovs.KeyValue) (bool, error) {
	if f.down {
		return false, errSwitchDown
	}
	*f.log = append(*f.log, "set-other-config")
	changed := false
	for _, kv := range values {
		if f.otherConfig[kv.Key] != kv.Value {
			f.otherConfig[kv.Key] = kv.Value
			changed = true
		}
	}
	return changed, nil
}

func (f *fakeOVS) AddBridge(_ context.Context, name, _ string, _ map[string]string) error {
	if f.down {
		return errSwitchDown
	}
	*f.log = append(*f.log, "add-bridge "+name)
	return nil
}

func (f *fakeOVS) AddBridgePort(_ context.Context, bridge, port string, _ ovs.PortOptions) error {
	if f.down {
		return errSwitchDown
	}
	*f.log = append(*f.log, "add-port "+bridge+" "+port)
	return nil
}

func (f *fakeOVS) AddLinuxBridgePort(context.Context, string, string, ovs.InterfaceData, ovs.PortData) error {
	return nil
}

func (f *fakeOVS) AddBridgeBond(context.Context, string, string, ovs.PortData, []ovs.BondInterface) error {
	return nil
}

func (f *fakeOVS) EnableIPFIX(context.Context, string, string) error { return nil }

func (f *fakeOVS) DisableIPFIX(context.Context, string) error { return nil }

// fakeServices drops the fake switch connection whenever
// openvswitch-switch restarts.
type fakeServices struct {
	log     *calls
	sw      *fakeOVS
	stopped bool
}

func (f *fakeServices) IsRunning(context.Context, string) (bool, error) { return !f.stopped, nil }

func (f *fakeServices) Start(_ context.Context, name string) error {
	*f.log = append(*f.log, "start "+name)
	f.stopped = false
	return nil
}

func (f *fakeServices) Restart(_ context.Context, name string) error {
	*f.log = append(*f.log, "restart "+name)
	if name == topology.OVSService {
		f.sw.down = true
	}
	return nil
}

func (f *fakeServices) IsSystemd() bool { return true }

type fakeResolver []dpdk.Assignment

func (f fakeResolver) ResolveBridges(string) ([]dpdk.Assignment, error) { return f, nil }

func (f fakeResolver) ResolveBonds(string) ([]dpdk.Assignment, error) { return nil, nil }

type fakeNUMA []pci.NUMANode

func (f fakeNUMA) NUMANodes() ([]pci.NUMANode, error) { return f, nil }

type memStore map[string]string

func (s memStore) Get(key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

func (s memStore) Set(key, value string) error {
	s[key] = value
	return nil
}

func (s memStore) Flush() error { return nil }

type fakeVFs struct {
	log    *calls
	counts map[string]int
}

func (f *fakeVFs) SriovDevices() []pci.Device {
	return []pci.Device{{InterfaceName: "ens0", SRIOV: true, TotalVFs: 16, NumVFs: f.counts["ens0"]}}
}

func (f *fakeVFs) DeviceFromInterfaceName(name string) (pci.Device, bool) {
	for _, d := range f.SriovDevices() {
		if d.InterfaceName == name {
			return d, true
		}
	}
	return pci.Device{}, false
}

func (f *fakeVFs) SetSriovNumVFs(name string, numvfs int) (bool, error) {
	if f.counts[name] == numvfs {
		return false, nil
	}
	*f.log = append(*f.log, "set-vfs "+name)
	f.counts[name] = numvfs
	return true, nil
}

type fakeRestarter struct{ log *calls }

func (f *fakeRestarter) RemoteRestart(context.Context) error {
	*f.log = append(*f.log, "remote-restart")
	return nil
}

var testDPDKDevices = fakeResolver{
	{PCIAddress: "0000:00:1c.0", Name: "br-a"},
	{PCIAddress: "0000:00:1d.0", Name: "br-b"},
}

func newAgent(opts *config.Options, log *calls) (*Agent, *fakeOVS, memStore) {
	sw := &fakeOVS{log: log, version: "2.13.8", otherConfig: map[string]string{}}
	services := &fakeServices{log: log, sw: sw}
	store := memStore{}
	a := &Agent{
		Options:  opts,
		Features: NewFeatures(opts),
		OVS:      sw,
		Services: services,
		Topology: &topology.Reconciler{
			Switch:     sw,
			Services:   services,
			Interfaces: func() ([]net_utils.NetworkInterface, error) { return nil, nil },
			Resolver:   testDPDKDevices,
			Log:        logr.Discard(),
		},
		SRIOV: &sriov.Reconciler{
			Devices:   &fakeVFs{log: log, counts: map[string]int{}},
			Restarter: &fakeRestarter{log: log},
			Log:       logr.Discard(),
		},
		Resolver: testDPDKDevices,
		NUMA:     fakeNUMA{{ID: 0, Cores: []int{0, 1}}, {ID: 1, Cores: []int{8, 9}}},
		Store:    store,
		Log:      logr.Discard(),
	}
	return a, sw, store
}

func defaultOptions() *config.Options {
	return &config.Options{
		OpenStackRelease: "ussuri",
		UbuntuSeries:     "focal",
		DPDKSocketMemory: 1024,
		DPDKSocketCores:  1,
		GlobalPhysnetMTU: 1500,
		SriovNumVFs:      "auto",
	}
}

func TestEnableDPDK(t *testing.T) {
	var log calls
	a, sw, _ := newAgent(defaultOptions(), &log)

	changed, err := a.EnableDPDK(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, map[string]string{
		"dpdk-lcore-mask": "0x101",
		"dpdk-socket-mem": "1024,1024",
		"dpdk-init":       "true",
		"dpdk-extra":      "-w 0000:00:1c.0 -w 0000:00:1d.0",
	}, sw.otherConfig)
	assert.Equal(t, calls{"set-other-config", "restart openvswitch-switch", "wait-connected"}, log)

	log = nil
	changed, err = a.EnableDPDK(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, calls{"set-other-config"}, log)
}

func TestEnableDPDKBeforeLateInit(t *testing.T) {
	var log calls
	a, sw, _ := newAgent(defaultOptions(), &log)
	sw.version = "2.5.0"

	changed, err := a.EnableDPDK(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, log)
}

func TestEnableHardwareOffload(t *testing.T) {
	var log calls
	a, sw, _ := newAgent(defaultOptions(), &log)

	changed, err := a.EnableHardwareOffload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "30000", sw.otherConfig["max-idle"])
	assert.Equal(t, "true", sw.otherConfig["hw-offload"])
}

func TestConfigChangedOrder(t *testing.T) {
	opts := defaultOptions()
	opts.EnableDPDK = true
	opts.EnableSRIOV = true
	var log calls
	a, _, store := newAgent(opts, &log)

	require.NoError(t, a.ConfigChanged(context.Background()))
	assert.Equal(t, calls{
		"set-other-config",
		"restart openvswitch-switch",
		"wait-connected",
		"add-bridge br-int",
		"add-bridge br-ex",
		"add-bridge br-a",
		"add-port br-a " + dpdk.HashedPortName("0000:00:1c.0"),
		"add-bridge br-b",
		"add-port br-b " + dpdk.HashedPortName("0000:00:1d.0"),
		"set-vfs ens0",
		"remote-restart",
	}, log)
	assert.Equal(t, "auto", store[sriovNumVFsKey])

	// sriov-numvfs did not change so VFs are left alone.
	log = nil
	require.NoError(t, a.ConfigChanged(context.Background()))
	assert.NotContains(t, log, "set-vfs ens0")
	assert.NotContains(t, log, "remote-restart")
}

func TestConfigChangedStartsStoppedOVS(t *testing.T) {
	opts := defaultOptions()
	opts.EnableDPDK = true
	var log calls
	a, sw, _ := newAgent(opts, &log)
	sw.down = true
	a.Services.(*fakeServices).stopped = true

	require.NoError(t, a.ConfigChanged(context.Background()))
	require.GreaterOrEqual(t, len(log), 6)
	assert.Equal(t, calls{
		"start openvswitch-switch",
		"wait-connected",
		"set-other-config",
		"restart openvswitch-switch",
		"wait-connected",
		"add-bridge br-int",
	}, log[:6])
}

func TestConfigureSRIOVTracksChanges(t *testing.T) {
	opts := defaultOptions()
	opts.EnableSRIOV = true
	var log calls
	a, _, store := newAgent(opts, &log)
	store[sriovNumVFsKey] = "auto"

	changed, err := a.ConfigureSRIOV(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, log)

	changed, err = a.ConfigureSRIOV(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, changed)

	opts.SriovNumVFs = "ens0:4"
	log = nil
	changed, err = a.ConfigureSRIOV(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "ens0:4", store[sriovNumVFsKey])
	assert.Equal(t, calls{"set-vfs ens0", "remote-restart"}, log)
}

func TestConfigureSRIOVDisabled(t *testing.T) {
	opts := defaultOptions()
	opts.EnableSRIOV = true
	opts.UbuntuSeries = "trusty"
	var log calls
	a, _, store := newAgent(opts, &log)

	changed, err := a.ConfigureSRIOV(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, store)
}
