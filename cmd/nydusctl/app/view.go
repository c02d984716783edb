package app

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crutech/nydus/pkg/pool"
	"github.com/crutech/nydus/pkg/validation"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "List pool records and their tenancies",
	Args:  cobra.NoArgs,
	RunE:  viewCmdFunc,
}

func init() {
	viewCmd.Flags().String("uuid", "", "Only show records with this game UUID")
	viewCmd.Flags().String("addr", "", "Only show records allocated to this client address")
	viewCmd.MarkFlagsMutuallyExclusive("uuid", "addr")
}

func viewCmdFunc(cmd *cobra.Command, _ []string) error {
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

	var records []*pool.Record
	switch {
	case uuid != "":
		if records, err = engine.ViewByUUID(uuid); err != nil {
			return err
		}
	case addr != "":
		if records, err = engine.ViewByAddr(addr); err != nil {
			return err
		}
	default:
		records = engine.ViewAll()
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UUID\tACCOUNT\tPLAYER\tCLIENT\tUSER\tALLOCATED")
	for _, r := range records {
		client, user, at := "-", "-", "-"
		if r.Allocated() {
			client = r.ClientAddr()
			user = r.ClientUser()
			at = r.AllocatedAt().Format(validation.TimeFormat)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.UUID(), r.Bundle().Username(), r.Bundle().Profile().Name, client, user, at)
	}
	return w.Flush()
}
