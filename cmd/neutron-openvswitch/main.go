package main

import "github.com/cybercoder/neutron-openvswitch/cmd/neutron-openvswitch/cmd"

func main() {
	cmd.Execute()
}
