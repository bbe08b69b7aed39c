package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ipsix/hostsweep/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hostsweep version",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("hostsweep", buildinfo.Version)
	},
}
