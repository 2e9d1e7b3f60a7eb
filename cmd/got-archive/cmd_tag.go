package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gotarchive/pkg/object"
)

func newTagCmd(opts *rootOptions) *cobra.Command {
	var deleteTag string
	var force bool
	var message string
	var tagger string

	cmd := &cobra.Command{
		Use:   "tag [name] [revision]",
		Short: "List, create, or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.openRepo()
			if err != nil {
				return err
			}

			if strings.TrimSpace(deleteTag) != "" {
				if len(args) > 0 {
					return fmt.Errorf("tag --delete does not accept positional args")
				}
				return r.DeleteTag(deleteTag)
			}

			if len(args) == 0 {
				tags, err := r.ListTags()
				if err != nil {
					return err
				}
				for _, name := range tags {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			rev := ""
			if len(args) == 2 {
				rev = args[1]
			}
			target, err := r.ResolveRevision(rev)
			if err != nil {
				return err
			}

			if message == "" {
				return r.CreateTag(args[0], target, force)
			}
			var tagHash object.Hash
			if tagHash, err = r.CreateAnnotatedTag(args[0], target, tagger, message, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tag %s %s\n", args[0], shortHash(string(tagHash)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteTag, "delete", "d", "", "delete the named tag")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")
	cmd.Flags().StringVarP(&message, "message", "m", "", "create an annotated tag with this message")
	cmd.Flags().StringVar(&tagger, "tagger", "", "tagger identity for annotated tags")
	return cmd
}
