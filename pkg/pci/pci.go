package pci

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
)

var pciAddressRegexp = regexp.MustCompile(`^(?i)(?:([0-9a-f]{1,4}):)?([0-9a-f]{1,2}):([0-9a-f]{1,2})\.([0-7])$`)

// FormatPCIAddress returns the zero padded domain:bus:slot.func form of a PCI
// address. A missing domain is taken as 0000.
func FormatPCIAddress(address string) (string, error) {
	m := pciAddressRegexp.FindStringSubmatch(strings.TrimSpace(address))
	if m == nil {
		return "", fmt.Errorf("%q is not a PCI address", address)
	}
	if m[1] == "" {
		m[1] = "0"
	}
	fields := make([]uint64, 3)
	for idx, part := range m[1:4] {
		v, err := strconv.ParseUint(part, 16, 16)
		if err != nil {
			return "", fmt.Errorf("%q is not a PCI address", address)
		}
		fields[idx] = v
	}
	return fmt.Sprintf("%04x:%02x:%02x.%s", fields[0], fields[1], fields[2], m[4]), nil
}

// Device is a PCI network function as seen by the kernel.
type Device struct {
	PCIAddress    string
	InterfaceName string
	MACAddress    string
	State         string
	SRIOV         bool
	TotalVFs      int
	NumVFs        int
}

// Link is the part of a kernel network link the inventory needs.
type Link struct {
	Name  string
	MAC   string
	State string
}

// LinkSource lists kernel network links and maps them to their bus address.
type LinkSource interface {
	Links() ([]Link, error)
	BusInfo(name string) (string, error)
}

// Inventory is the PCI network device inventory of the host, sorted in PCI
// bus order. It is a snapshot; call Refresh after changing VF counts.
type Inventory struct {
	source  LinkSource
	sysfs   *Sysfs
	log     logr.Logger
	devices []Device
}

// NewInventory enumerates the PCI network devices reported by source.
func NewInventory(source LinkSource, sysfs *Sysfs, log logr.Logger) (*Inventory, error) {
	inv := &Inventory{source: source, sysfs: sysfs, log: log.WithName("pci")}
	if err := inv.Refresh(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Refresh re-enumerates the devices.
func (i *Inventory) Refresh() error {
	links, err := i.source.Links()
	if err != nil {
		return common.NewExternalCallFailure(err, "failed to list network links")
	}

	var devices []Device
	for _, link := range links {
		busInfo, err := i.source.BusInfo(link.Name)
		if err != nil {
			i.log.V(1).Info("skipping link without bus info", "interface", link.Name, "reason", err.Error())
			continue
		}
		address, err := FormatPCIAddress(busInfo)
		if err != nil {
			i.log.V(1).Info("skipping non-PCI link", "interface", link.Name, "bus", busInfo)
			continue
		}
		device := Device{
			PCIAddress:    address,
			InterfaceName: link.Name,
			MACAddress:    strings.ToLower(link.MAC),
			State:         link.State,
		}
		total, ok, err := i.sysfs.TotalVFs(link.Name)
		if err != nil {
			return err
		}
		if ok {
			current, _, err := i.sysfs.NumVFs(link.Name)
			if err != nil {
				return err
			}
			device.SRIOV, device.TotalVFs, device.NumVFs = true, total, current
		}
		devices = append(devices, device)
	}

	sort.SliceStable(devices, func(a, b int) bool {
		return devices[a].PCIAddress < devices[b].PCIAddress
	})
	i.devices = devices
	return nil
}

// Devices returns the devices in PCI bus order.
func (i *Inventory) Devices() []Device {
	return append([]Device(nil), i.devices...)
}

// SriovDevices returns the SR-IOV capable devices in PCI bus order.
func (i *Inventory) SriovDevices() []Device {
	return lo.Filter(i.devices, func(d Device, _ int) bool { return d.SRIOV })
}

// DeviceFromMAC returns the device owning mac.
func (i *Inventory) DeviceFromMAC(mac string) (Device, bool) {
	mac = strings.ToLower(strings.ReplaceAll(mac, "-", ":"))
	return lo.Find(i.devices, func(d Device) bool { return d.MACAddress == mac })
}

// DeviceFromInterfaceName returns the device backing the named interface.
func (i *Inventory) DeviceFromInterfaceName(name string) (Device, bool) {
	return lo.Find(i.devices, func(d Device) bool { return d.InterfaceName == name })
}

// DeviceFromPCIAddress returns the device at address.
func (i *Inventory) DeviceFromPCIAddress(address string) (Device, bool) {
	return lo.Find(i.devices, func(d Device) bool { return d.PCIAddress == address })
}

// SetSriovNumVFs sets the VF count of the named SR-IOV device and reports
// whether anything was written. The kernel refuses to change between two
// non-zero counts so the count is reset to zero first.
func (i *Inventory) SetSriovNumVFs(name string, numvfs int) (bool, error) {
	device, ok := i.DeviceFromInterfaceName(name)
	if !ok || !device.SRIOV {
		return false, nil
	}
	current, _, err := i.sysfs.NumVFs(name)
	if err != nil {
		return false, err
	}
	if current == numvfs {
		return false, nil
	}
	if current != 0 && numvfs != 0 {
		if err := i.sysfs.SetNumVFs(name, 0); err != nil {
			return false, err
		}
	}
	if err := i.sysfs.SetNumVFs(name, numvfs); err != nil {
		return false, err
	}
	i.log.Info("set VF count", "interface", name, "pci", device.PCIAddress, "numvfs", numvfs)

	for idx := range i.devices {
		if i.devices[idx].InterfaceName == name {
			i.devices[idx].NumVFs = numvfs
		}
	}
	return true, nil
}
