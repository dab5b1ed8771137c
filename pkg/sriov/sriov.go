package sriov

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/pci"
)

// Devices is the PCI inventory view VF reconciliation needs.
type Devices interface {
	SriovDevices() []pci.Device
	DeviceFromInterfaceName(name string) (pci.Device, bool)
	SetSriovNumVFs(name string, numvfs int) (bool, error)
}

// Restarter asks the related principal applications to restart their
// agents.
type Restarter interface {
	RemoteRestart(ctx context.Context) error
}

// Reconciler applies sriov-numvfs to the host SR-IOV devices.
type Reconciler struct {
	Devices   Devices
	Restarter Restarter
	Log       logr.Logger
}

// ConfigureSRIOV sets the VF count of every device sriov-numvfs selects and
// reports whether any count changed. Related applications are only asked to
// restart after a change.
//
// "auto" gives every capable device its total. A blanket count is applied
// to every capable device as given, without capping it at the device total.
// Per device entries only touch the named interfaces that are SR-IOV
// capable.
func (r *Reconciler) ConfigureSRIOV(ctx context.Context, numvfs string) (bool, error) {
	log := r.Log.WithName("sriov")
	policy, err := config.ParseSriovNumVFs(numvfs)
	if err != nil {
		return false, err
	}

	var targets []config.DeviceVFs
	switch policy.Mode {
	case config.SriovAuto:
		for _, d := range r.Devices.SriovDevices() {
			targets = append(targets, config.DeviceVFs{Interface: d.InterfaceName, NumVFs: d.TotalVFs})
		}
	case config.SriovBlanket:
		for _, d := range r.Devices.SriovDevices() {
			targets = append(targets, config.DeviceVFs{Interface: d.InterfaceName, NumVFs: policy.Blanket})
		}
	case config.SriovPerDevice:
		for _, entry := range policy.Devices {
			d, ok := r.Devices.DeviceFromInterfaceName(entry.Interface)
			if !ok || !d.SRIOV {
				log.Info("skipping device that is not SR-IOV capable", "interface", entry.Interface)
				continue
			}
			targets = append(targets, entry)
		}
	}

	changed := false
	for _, target := range targets {
		log.V(1).Info("setting VF count", "interface", target.Interface, "numvfs", target.NumVFs)
		written, err := r.Devices.SetSriovNumVFs(target.Interface, target.NumVFs)
		if err != nil {
			return changed, err
		}
		changed = changed || written
	}

	if changed && r.Restarter != nil {
		log.Info("VF counts changed, requesting remote restart")
		if err := r.Restarter.RemoteRestart(ctx); err != nil {
			return changed, err
		}
	}
	return changed, nil
}
