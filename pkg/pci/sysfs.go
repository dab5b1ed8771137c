package pci

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	perrors "github.com/pkg/errors"

	"github.com/cybercoder/neutron-openvswitch/pkg/common"
	"github.com/cybercoder/neutron-openvswitch/pkg/config"
)

const (
	totalVFsFile = "sriov_totalvfs"
	numVFsFile   = "sriov_numvfs"
)

// Sysfs reads and writes the SR-IOV and NUMA attributes the kernel exposes
// under Root, normally /sys.
type Sysfs struct {
	Root         string
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// NewSysfs returns a Sysfs rooted at root with the default VF wait settings.
func NewSysfs(root string) *Sysfs {
	if root == "" {
		root = "/sys"
	}
	return &Sysfs{Root: root, PollInterval: 50 * time.Millisecond, WaitTimeout: 30 * time.Second}
}

// DevicePath returns the PCI device directory behind a network interface.
func (s *Sysfs) DevicePath(iface string) string {
	return filepath.Join(s.Root, "class", "net", iface, "device")
}

// TotalVFs returns the maximum VF count of iface. ok is false when the
// device is not SR-IOV capable.
func (s *Sysfs) TotalVFs(iface string) (int, bool, error) {
	return readCount(filepath.Join(s.DevicePath(iface), totalVFsFile))
}

// NumVFs returns the current VF count of iface.
func (s *Sysfs) NumVFs(iface string) (int, bool, error) {
	return readCount(filepath.Join(s.DevicePath(iface), numVFsFile))
}

// SetNumVFs writes the VF count of iface and waits for the VFs to appear.
func (s *Sysfs) SetNumVFs(iface string, numvfs int) error {
	return s.WriteNumVFs(s.DevicePath(iface), numvfs)
}

// ReadTotalVFs returns the maximum VF count of the device directory path.
func (s *Sysfs) ReadTotalVFs(path string) (int, error) {
	total, ok, err := readCount(filepath.Join(path, totalVFsFile))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, common.NewExternalCallFailure(os.ErrNotExist, "no %s in %s", totalVFsFile, path)
	}
	return total, nil
}

// WriteNumVFs writes numvfs to the device directory path and waits until the
// kernel has created that many VFs.
func (s *Sysfs) WriteNumVFs(path string, numvfs int) error {
	file := filepath.Join(path, numVFsFile)
	if err := os.WriteFile(file, []byte(strconv.Itoa(numvfs)), 0644); err != nil {
		return common.NewExternalCallFailure(err, "failed to write %d to %s", numvfs, file)
	}
	return s.waitForVFs(path, numvfs)
}

func (s *Sysfs) waitForVFs(path string, numvfs int) error {
	deadline := time.Now().Add(s.WaitTimeout)
	for {
		created, err := countVFs(path)
		if err != nil {
			return common.NewExternalCallFailure(err, "failed to list VFs of %s", path)
		}
		if created >= numvfs {
			return nil
		}
		if time.Now().After(deadline) {
			return common.NewExternalCallFailure(os.ErrDeadlineExceeded,
				"%d of %d VFs appeared in %s", created, numvfs, path)
		}
		time.Sleep(s.PollInterval)
	}
}

func countVFs(path string) (int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "virtfn") {
			count++
		}
	}
	return count, nil
}

// FindSriovDevices returns every device directory under Root/devices that
// exposes sriov_totalvfs, in lexical order.
func (s *Sysfs) FindSriovDevices() ([]string, error) {
	var devices []string
	root := filepath.Join(s.Root, "devices")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && d.Name() == totalVFsFile {
			devices = append(devices, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, common.NewExternalCallFailure(err, "failed to walk %s", root)
	}
	sort.Strings(devices)
	return devices, nil
}

// NUMANode is a NUMA node and its cores in ascending order.
type NUMANode struct {
	ID    int
	Cores []int
}

// NUMANodes returns the NUMA nodes of the host ordered by node id.
func (s *Sysfs) NUMANodes() ([]NUMANode, error) {
	pattern := filepath.Join(s.Root, "devices", "system", "node", "node*")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, perrors.Wrapf(err, "failed to glob %s", pattern)
	}

	var nodes []NUMANode
	for _, path := range paths {
		id, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "node"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, "cpulist"))
		if err != nil {
			return nil, common.NewExternalCallFailure(err, "failed to read cpulist of node %d", id)
		}
		cores, err := config.ParseCPUList(string(data))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, NUMANode{ID: id, Cores: cores})
	}
	sort.Slice(nodes, func(a, b int) bool { return nodes[a].ID < nodes[b].ID })
	return nodes, nil
}

func readCount(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, common.NewExternalCallFailure(err, "failed to read %s", path)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, common.NewExternalCallFailure(err, "unexpected content in %s", path)
	}
	return n, true, nil
}
