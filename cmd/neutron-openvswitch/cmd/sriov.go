package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cybercoder/neutron-openvswitch/pkg/pci"
	"github.com/cybercoder/neutron-openvswitch/pkg/sriov"
)

var (
	vfsStart   bool
	vfsStop    bool
	vfsRestart bool
	vfsList    string
	vfsBlanket string
)

var sriovVFsCmd = &cobra.Command{
	Use:   "sriov-vfs",
	Short: "Create or remove SR-IOV VFs at boot",
	Long: `Writes sriov_numvfs for the listed interfaces, or for every SR-IOV
device found under sysfs when --vfs is empty. Blanket counts are capped at
each device's sriov_totalvfs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		vfs, err := sriov.ParseVFs(vfsList)
		if err != nil {
			return err
		}
		b := &sriov.Boot{
			Sysfs:   pci.NewSysfs(options.SysfsRoot),
			VFs:     vfs,
			Blanket: vfsBlanket,
			Log:     logger,
		}
		switch {
		case vfsStart:
			return b.Start()
		case vfsStop:
			return b.Stop()
		case vfsRestart:
			return b.Restart()
		}
		return errors.New("one of --start, --stop or --restart is required")
	},
}

func init() {
	f := sriovVFsCmd.Flags()
	f.BoolVar(&vfsStart, "start", false, "create the VFs")
	f.BoolVar(&vfsStop, "stop", false, "remove the VFs")
	f.BoolVar(&vfsRestart, "restart", false, "remove and recreate the VFs")
	f.StringVar(&vfsList, "vfs", "", "interface:count list")
	f.StringVar(&vfsBlanket, "vfs-blanket", "auto", "count for every device when --vfs is empty")
	sriovVFsCmd.MarkFlagsMutuallyExclusive("start", "stop", "restart")
	rootCmd.AddCommand(sriovVFsCmd)
}
