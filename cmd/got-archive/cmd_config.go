package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odvcencio/gotarchive/pkg/archive"
	"github.com/odvcencio/gotarchive/pkg/repo"
)

type configKey struct {
	name string
	get  func(*repo.ArchiveConfig) string
	set  func(*repo.ArchiveConfig, string) error
}

var configKeys = []configKey{
	{
		name: "archive.format",
		get:  func(c *repo.ArchiveConfig) string { return c.Format },
		set: func(c *repo.ArchiveConfig, v string) error {
			if v != "" {
				f, err := archive.ParseFormat(v)
				if err != nil {
					return err
				}
				v = f.String()
			}
			c.Format = v
			return nil
		},
	},
	{
		name: "archive.level",
		get:  func(c *repo.ArchiveConfig) string { return strconv.Itoa(c.Level) },
		set: func(c *repo.ArchiveConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("level must be an integer: %w", err)
			}
			c.Level = n
			return nil
		},
	},
	{
		name: "archive.comment",
		get:  func(c *repo.ArchiveConfig) string { return c.Comment },
		set:  func(c *repo.ArchiveConfig, v string) error { c.Comment = v; return nil },
	},
	{
		name: "archive.prefix",
		get:  func(c *repo.ArchiveConfig) string { return c.Prefix },
		set:  func(c *repo.ArchiveConfig, v string) error { c.Prefix = v; return nil },
	},
	{
		name: "archive.require_signature",
		get:  func(c *repo.ArchiveConfig) string { return strconv.FormatBool(c.RequireSignature) },
		set: func(c *repo.ArchiveConfig, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("require_signature must be true or false: %w", err)
			}
			c.RequireSignature = b
			return nil
		},
	},
	{
		name: "archive.allowed_signers",
		get:  func(c *repo.ArchiveConfig) string { return c.AllowedSigners },
		set:  func(c *repo.ArchiveConfig, v string) error { c.AllowedSigners = v; return nil },
	},
}

func lookupConfigKey(name string) (configKey, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range configKeys {
		if k.name == name {
			return k, nil
		}
	}
	return configKey{}, fmt.Errorf("unknown config key %q", name)
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config [key [value]]",
		Short: "Show or change repository archive defaults",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := opts.openRepo()
			if err != nil {
				return err
			}
			cfg, err := r.ReadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				for _, k := range configKeys {
					fmt.Fprintf(out, "%s=%s\n", k.name, k.get(&cfg.Archive))
				}
				return nil
			}

			key, err := lookupConfigKey(args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				fmt.Fprintln(out, key.get(&cfg.Archive))
				return nil
			}
			if err := key.set(&cfg.Archive, args[1]); err != nil {
				return fmt.Errorf("config %s: %w", key.name, err)
			}
			return r.WriteConfig(cfg)
		},
	}
}
