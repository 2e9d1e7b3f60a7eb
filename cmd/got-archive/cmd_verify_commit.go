package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCommitCmd(opts *rootOptions) *cobra.Command {
	var allowedSigners string

	cmd := &cobra.Command{
		Use:   "verify-commit [revision]",
		Short: "Check a commit's SSH signature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.openRepo()
			if err != nil {
				return err
			}
			if allowedSigners == "" {
				cfg, err := opts.loadConfig(r)
				if err != nil {
					return err
				}
				allowedSigners = cfg.Archive.AllowedSigners
			}
			check, err := signatureCheck(allowedSigners)
			if err != nil {
				return err
			}

			revision := ""
			if len(args) > 0 {
				revision = args[0]
			}
			h, c, err := r.ResolveCommit(revision)
			if err != nil {
				return err
			}
			if err := check(h, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: commit %s has a valid signature\n", shortHash(string(h)))
			return nil
		},
	}

	cmd.Flags().StringVar(&allowedSigners, "allowed-signers", "", "authorized_keys file listing trusted signing keys")
	return cmd
}
