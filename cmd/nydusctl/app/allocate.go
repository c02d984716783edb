package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var allocateCmd = &cobra.Command{
	Use:   "allocate <uuid> <addr> <user>",
	Short: "Force-allocate an account to a workstation",
	Long: `Allocate assigns the record with the given game UUID to a client address
and local user, overwriting any tenancy the record already has. The
single-account-per-client rule is not enforced here; view the pool
afterwards if in doubt.`,
	Args: cobra.ExactArgs(3),
	RunE: allocateCmdFunc,
}

func allocateCmdFunc(cmd *cobra.Command, args []string) error {
	_, engine, err := openPool(cmd)
	if err != nil {
		return err
	}

	uuid, addr, user := args[0], args[1], args[2]
	touched, err := engine.AllocateByUUID(uuid, addr, user)
	if err != nil {
		return err
	}
	if len(touched) == 0 {
		return fmt.Errorf("no record with UUID %s in the pool", uuid)
	}

	for _, r := range touched {
		fmt.Fprintf(cmd.OutOrStdout(), "Allocated %s (%s) to %s@%s\n",
			r.Bundle().Profile().Name, r.UUID(), user, addr)
	}
	return nil
}
