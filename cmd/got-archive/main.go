package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/odvcencio/gotarchive/pkg/repo"
)

const version = "0.1.0-dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	repoPath   string
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "got-archive",
		Short:         "Export snapshots of a got repository as zip and tar archives",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.repoPath, "repo", "C", ".", "path inside the repository")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: .got/config.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newSnapshotCmd(opts))
	root.AddCommand(newArchiveCmd(opts))
	root.AddCommand(newLsTreeCmd(opts))
	root.AddCommand(newTagCmd(opts))
	root.AddCommand(newVerifyCommitCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newFormatsCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "got-archive %s\n", version)
		},
	}
}

func (o *rootOptions) openRepo() (*repo.Repo, error) {
	return repo.Open(o.repoPath)
}

// loadConfig reads --config when given, otherwise the repository config.
func (o *rootOptions) loadConfig(r *repo.Repo) (*repo.Config, error) {
	if strings.TrimSpace(o.configPath) != "" {
		return repo.LoadConfigFile(o.configPath)
	}
	return r.ReadConfig()
}

// newLogger builds the process logger writing to w.
func (o *rootOptions) newLogger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	switch strings.ToLower(o.logFormat) {
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("--log-format: unknown format %q", o.logFormat)
	}
	return logger, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
