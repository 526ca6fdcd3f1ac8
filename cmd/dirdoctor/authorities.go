package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthoritiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "authorities",
		Short: "List the directory authorities being checked",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := a.registry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-22s %-40s %s\n", "nickname", "dirport", "identity", "bwauth")
			for _, p := range registry.Peers() {
				bw := "no"
				if p.BandwidthAuthority {
					bw = "yes"
				}
				identity := p.Identity
				if identity == "" {
					identity = "-"
				}
				fmt.Fprintf(out, "%-12s %-22s %-40s %s\n", p.Nickname, p.Addr(), identity, bw)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
