package net_utils

import (
	"net"
	"runtime"
	"strings"

	"github.com/go-logr/logr"
	"github.com/samber/lo"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
	"github.com/cybercoder/neutron-openvswitch/pkg/config"
)

// OpenHandle returns a netlink handle for the namespace at netnsPath, or for
// the current namespace when netnsPath is empty.
func OpenHandle(netnsPath string) (*netlink.Handle, error) {
	if netnsPath == "" {
		handle, err := netlink.NewHandle()
		if err != nil {
			return nil, common.NewExternalCallFailure(err, "failed to open netlink handle")
		}
		return handle, nil
	}

	ns, err := netns.GetFromPath(netnsPath)
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to open netns %s", netnsPath)
	}
	defer ns.Close()

	handle, err := netlink.NewHandleAt(ns)
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to open netlink handle in %s", netnsPath)
	}
	return handle, nil
}

// InNetns runs fn on an OS thread switched into the namespace at netnsPath,
// or in place when netnsPath is empty. Sockets opened by fn stay bound to
// that namespace.
func InNetns(netnsPath string, fn func() error) error {
	if netnsPath == "" {
		return fn()
	}
	target, err := netns.GetFromPath(netnsPath)
	if err != nil {
		return common.NewExternalCallFailure(err, "failed to open netns %s", netnsPath)
	}
	defer target.Close()

	runtime.LockOSThread()
	origin, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return common.NewExternalCallFailure(err, "failed to get current netns")
	}
	defer origin.Close()
	if err := netns.Set(target); err != nil {
		runtime.UnlockOSThread()
		return common.NewExternalCallFailure(err, "failed to enter netns %s", netnsPath)
	}
	fnErr := fn()
	if err := netns.Set(origin); err != nil {
		// Leave the thread locked so it dies with the goroutine instead of
		// being reused in the wrong namespace.
		return common.NewExternalCallFailure(err, "failed to leave netns %s", netnsPath)
	}
	runtime.UnlockOSThread()
	return fnErr
}

// ListInterfaces enumerates the links visible through handle in kernel index
// order.
func ListInterfaces(handle *netlink.Handle) ([]NetworkInterface, error) {
	links, err := handle.LinkList()
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to list links")
	}
	byIndex := lo.KeyBy(links, func(l netlink.Link) int { return l.Attrs().Index })

	interfaces := make([]NetworkInterface, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := handle.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			return nil, common.NewExternalCallFailure(err, "failed to list addresses of %s", attrs.Name)
		}
		global := lo.Filter(addrs, func(a netlink.Addr, _ int) bool {
			return a.IP != nil && !a.IP.IsLinkLocalUnicast()
		})

		nic := NetworkInterface{
			Name:       attrs.Name,
			MAC:        strings.ToLower(attrs.HardwareAddr.String()),
			Type:       link.Type(),
			HasAddress: len(global) > 0,
		}
		if master, ok := byIndex[attrs.MasterIndex]; ok && attrs.MasterIndex != 0 {
			switch master.Type() {
			case "bridge", "openvswitch":
				nic.BridgeMember = true
			case "bond":
				nic.BondMaster = master.Attrs().Name
			}
		}
		interfaces = append(interfaces, nic)
	}
	return interfaces, nil
}

// ResolvePort maps a data-port token onto an interface name. Tokens that are
// not MAC addresses are trusted and returned unchanged. A MAC address
// resolves to the first physical interface in inventory order that carries
// it, replaced by its bond master if enslaved, provided the result has no
// global address and is not already a bridge member.
func ResolvePort(token string, inventory []NetworkInterface) (string, bool) {
	if !config.IsMACAddress(token) {
		return token, true
	}
	mac := config.NormalizeMAC(token)
	byName := lo.KeyBy(inventory, func(n NetworkInterface) string { return n.Name })

	for _, nic := range inventory {
		if !nic.IsPhysical() || nic.MAC != mac {
			continue
		}
		candidate := nic
		if master, ok := byName[nic.BondMaster]; ok {
			candidate = master
		}
		if candidate.HasAddress || candidate.BridgeMember {
			continue
		}
		return candidate.Name, true
	}
	return "", false
}

// ResolvePortMappings resolves the port side of port -> bridge pairs,
// keeping input order. Unresolvable tokens are logged and dropped and an
// interface named twice keeps its first bridge.
func ResolvePortMappings(pairs []config.Pair, inventory []NetworkInterface, log logr.Logger) []config.Pair {
	var resolved []config.Pair
	seen := map[string]bool{}
	for _, p := range pairs {
		name, ok := ResolvePort(p.Key, inventory)
		if !ok {
			log.Info("dropping data port", "reason", common.NewDeviceResolutionMiss(p.Key).Error(), "bridge", p.Value)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		resolved = append(resolved, config.Pair{Key: name, Value: p.Value})
	}
	return resolved
}

// IsLinuxBridgeInterface reports whether name is a Linux bridge in the
// inventory.
func IsLinuxBridgeInterface(name string, inventory []NetworkInterface) bool {
	nic, ok := lo.Find(inventory, func(n NetworkInterface) bool { return n.Name == name })
	return ok && nic.IsLinuxBridge()
}
