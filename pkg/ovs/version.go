package ovs

import (
	"context"
	"fmt"

	"github.com/blang/semver/v4"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
)

var (
	// lateDPDKInitVersion introduced dpdk-init in other_config and
	// dpdk-devargs on interfaces.
	lateDPDKInitVersion = semver.MustParse("2.6.0")
	// vhostUserClientVersion makes OVS the client side of vhost-user sockets.
	vhostUserClientVersion = semver.MustParse("2.9.0")
)

// Version returns ovs_version of the running switch.
func (c *Client) Version(ctx context.Context) (string, error) {
	root, err := c.root(ctx)
	if err != nil {
		return "", err
	}
	if root.OVSVersion == nil || *root.OVSVersion == "" {
		return "", common.NewExternalCallFailure(fmt.Errorf("ovs_version is not set"), "failed to read OVS version")
	}
	return *root.OVSVersion, nil
}

// HasLateDPDKInit reports whether version is 2.6.0 or later.
func HasLateDPDKInit(version string) bool {
	return atLeast(version, lateDPDKInitVersion)
}

// VhostUserClient reports whether version is 2.9.0 or later.
func VhostUserClient(version string) bool {
	return atLeast(version, vhostUserClientVersion)
}

func atLeast(version string, minimum semver.Version) bool {
	v, err := semver.ParseTolerant(version)
	if err != nil {
		return false
	}
	// Distribution suffixes such as 2.13.8-0ubuntu1 parse as pre-releases.
	v.Pre = nil
	return v.GTE(minimum)
}
