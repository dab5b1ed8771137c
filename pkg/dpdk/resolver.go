package dpdk

import (
	"sort"

	"github.com/go-logr/logr"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/pci"
)

// DeviceLookup finds a PCI network device by MAC address.
type DeviceLookup interface {
	DeviceFromMAC(mac string) (pci.Device, bool)
}

// Store persists MAC to PCI address bindings between passes.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Flush() error
}

// Assignment binds a PCI address to a bridge or bond name.
type Assignment struct {
	PCIAddress string
	Name       string
}

// Resolver turns MAC keyed mappings into PCI address keyed assignments.
// Once a NIC is bound to a DPDK driver it is no longer listed by the
// kernel, so every binding that can be seen is persisted and the persisted
// binding is what the result is built from.
type Resolver struct {
	devices DeviceLookup
	store   Store
	log     logr.Logger
}

// NewResolver returns a resolver over devices that persists to store.
func NewResolver(devices DeviceLookup, store Store, log logr.Logger) *Resolver {
	return &Resolver{devices: devices, store: store, log: log.WithName("dpdk")}
}

// ResolveBridges resolves data-port ("bridge:mac ...") into bridge
// assignments in PCI address order.
func (r *Resolver) ResolveBridges(dataPort string) ([]Assignment, error) {
	pairs, err := config.ParseDataPortMappings(dataPort)
	if err != nil {
		return nil, err
	}
	return r.resolve(pairs)
}

// ResolveBonds resolves dpdk-bond-mappings ("bond:mac ...") into bond
// assignments in PCI address order.
func (r *Resolver) ResolveBonds(bondMappings string) ([]Assignment, error) {
	pairs, err := config.ParseBondMappings(bondMappings)
	if err != nil {
		return nil, err
	}
	return r.resolve(pairs)
}

func (r *Resolver) resolve(pairs []config.Pair) ([]Assignment, error) {
	byAddress := map[string]string{}
	for _, p := range pairs {
		key := p.Key
		if config.IsMACAddress(key) {
			key = config.NormalizeMAC(key)
		}
		if device, ok := r.devices.DeviceFromMAC(key); ok {
			if err := r.store.Set(key, device.PCIAddress); err != nil {
				return nil, common.NewExternalCallFailure(err, "failed to persist binding of %s", key)
			}
			if err := r.store.Flush(); err != nil {
				return nil, common.NewExternalCallFailure(err, "failed to flush binding of %s", key)
			}
		}

		address, ok, err := r.store.Get(key)
		if err != nil {
			return nil, common.NewExternalCallFailure(err, "failed to read binding of %s", key)
		}
		if !ok || address == "" {
			r.log.V(1).Info("dropping mapping", "reason", common.NewDeviceResolutionMiss(key).Error(), "name", p.Value)
			continue
		}
		byAddress[address] = p.Value
	}

	assignments := make([]Assignment, 0, len(byAddress))
	for address, name := range byAddress {
		assignments = append(assignments, Assignment{PCIAddress: address, Name: name})
	}
	sort.Slice(assignments, func(a, b int) bool {
		return assignments[a].PCIAddress < assignments[b].PCIAddress
	})
	return assignments, nil
}

// Addresses returns the PCI addresses of assignments.
func Addresses(assignments []Assignment) []string {
	addresses := make([]string, len(assignments))
	for i, a := range assignments {
		addresses[i] = a.PCIAddress
	}
	return addresses
}
