package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gotarchive/pkg/archive"
)

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported archive formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tEXTENSION\tCONTENT TYPE")
			for f := archive.FormatZip; f <= archive.FormatTarLz4; f++ {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f, f.Extension(), f.ContentType())
			}
			return tw.Flush()
		},
	}
}
