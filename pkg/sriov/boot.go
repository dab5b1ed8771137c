package sriov

import (
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	perrors "github.com/pkg/errors"

	"github.com/cybercoder/neutron-openvswitch/pkg/config"
	"github.com/cybercoder/neutron-openvswitch/pkg/pci"
)

// Boot configures VFs at host start, before the agent runs. It works on
// sysfs paths only so it does not need netlink or a config file.
type Boot struct {
	Sysfs *pci.Sysfs
	// VFs holds explicit interface counts; when empty every SR-IOV device
	// found under sysfs is configured from Blanket.
	VFs     []config.DeviceVFs
	Blanket string
	Log     logr.Logger
}

// ParseVFs parses the "iface:count ..." list of the boot helper.
func ParseVFs(s string) ([]config.DeviceVFs, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parsed, err := config.ParseSriovNumVFs(s)
	if err != nil {
		return nil, err
	}
	if parsed.Mode != config.SriovPerDevice {
		return nil, perrors.Errorf("vfs %q is not a list of interface:count entries", s)
	}
	return parsed.Devices, nil
}

// Start writes the configured counts.
func (b *Boot) Start() error {
	return b.configure(false)
}

// Stop removes every VF.
func (b *Boot) Stop() error {
	return b.configure(true)
}

// Restart removes and then recreates the VFs.
func (b *Boot) Restart() error {
	if err := b.Stop(); err != nil {
		return err
	}
	return b.Start()
}

// configure writes every device and keeps going after a failed write; the
// first failure is returned at the end. Blanket counts are capped at the
// device total here.
func (b *Boot) configure(stop bool) error {
	log := b.Log.WithName("sriov-boot")
	var firstErr error
	write := func(path string, numvfs int) {
		log.Info("configuring VFs", "path", path, "numvfs", numvfs)
		if err := b.Sysfs.WriteNumVFs(path, numvfs); err != nil {
			log.Error(err, "error while configuring VFs", "path", path)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(b.VFs) > 0 {
		for _, entry := range b.VFs {
			numvfs := entry.NumVFs
			if stop {
				numvfs = 0
			}
			write(b.Sysfs.DevicePath(entry.Interface), numvfs)
		}
		return firstErr
	}

	devices, err := b.Sysfs.FindSriovDevices()
	if err != nil {
		return err
	}
	for _, device := range devices {
		total, err := b.Sysfs.ReadTotalVFs(device)
		if err != nil {
			return err
		}
		numvfs, err := blanketCount(b.Blanket, total, stop)
		if err != nil {
			return err
		}
		write(device, numvfs)
	}
	return firstErr
}

func blanketCount(blanket string, total int, stop bool) (int, error) {
	if stop {
		return 0, nil
	}
	if blanket == "" || blanket == "auto" {
		return total, nil
	}
	n, err := strconv.Atoi(blanket)
	if err != nil || n < 0 {
		return 0, perrors.Errorf("vfs blanket %q is not auto or a count", blanket)
	}
	return min(n, total), nil
}
