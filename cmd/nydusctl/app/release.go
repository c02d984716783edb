package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release (--uuid U | --addr A)",
		Short: "Release tenancies back into the pool",
		Args:  cobra.NoArgs,
		RunE:  releaseCmdFunc,
	}
	cmd.Flags().String("uuid", "", "Release the record with this game UUID")
	cmd.Flags().String("addr", "", "Release every record allocated to this client address")
	cmd.MarkFlagsOneRequired("uuid", "addr")
	cmd.MarkFlagsMutuallyExclusive("uuid", "addr")
	return cmd
}

func releaseCmdFunc(cmd *cobra.Command, _ []string) error {
	_, engine, err := openPool(cmd)
	if err != nil {
		return err
	}

	uuid, err := cmd.Flags().GetString("uuid")
	if err != nil {
		return err
	}
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}

	var released int
	if uuid != "" {
		released, err = engine.ReleaseByUUID(uuid)
	} else {
		released, err = engine.ReleaseByAddr(addr)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Released %d record(s)\n", released)
	return nil
}
