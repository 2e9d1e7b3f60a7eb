package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gotarchive/pkg/repo"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var message string
	var author string
	var sign bool
	var signKey string

	cmd := &cobra.Command{
		Use:   "snapshot [dir]",
		Short: "Record a directory tree as a new commit",
		Long: "Record a directory tree (default: the repository root) as a new commit on the\n" +
			"current branch. Executable bits and symlinks are preserved; nested got\n" +
			"repositories are recorded as submodule links.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("snapshot message is required (-m)")
			}
			r, err := opts.openRepo()
			if err != nil {
				return err
			}
			dir := r.RootDir
			if len(args) > 0 {
				dir = args[0]
			}

			if author == "" {
				author = os.Getenv("USER")
			}
			snapOpts := repo.SnapshotOptions{Author: author, Message: message}
			if sign || signKey != "" {
				signer, keyPath, err := repo.NewSSHSigner(signKey)
				if err != nil {
					return err
				}
				snapOpts.Signer = signer
				fmt.Fprintf(cmd.ErrOrStderr(), "signing with %s\n", keyPath)
			}

			h, err := r.Snapshot(dir, snapOpts)
			if err != nil {
				return err
			}

			branch := "HEAD"
			if head, err := r.Head(); err == nil && strings.HasPrefix(head, "refs/heads/") {
				branch = strings.TrimPrefix(head, "refs/heads/")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, shortHash(string(h)), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "override author (default: $USER)")
	cmd.Flags().BoolVarP(&sign, "sign", "S", false, "sign the commit with the default SSH key")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "SSH private key used to sign the commit")
	return cmd
}
