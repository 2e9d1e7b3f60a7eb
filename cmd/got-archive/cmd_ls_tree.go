package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gotarchive/pkg/archive"
)

func newLsTreeCmd(opts *rootOptions) *cobra.Command {
	var basePath string
	var long bool

	cmd := &cobra.Command{
		Use:   "ls-tree [revision]",
		Short: "List the entries an archive of a revision would contain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.openRepo()
			if err != nil {
				return err
			}
			revision := ""
			if len(args) > 0 {
				revision = args[0]
			}
			_, commit, err := r.ResolveCommit(revision)
			if err != nil {
				return err
			}

			tree, err := archive.NewTreeSource(r, commit, basePath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for entry, err := range tree.All() {
				if err != nil {
					return err
				}
				if long {
					fmt.Fprintf(out, "%s %-10s %s %8d\t%s\n", entry.Kind.FileMode(), entry.Kind, shortHash(string(entry.ID)), entry.Size, entry.Path)
					continue
				}
				fmt.Fprintln(out, entry.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&basePath, "path", "p", "", "list only this file or directory")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show mode, kind, object id, and size")
	return cmd
}
