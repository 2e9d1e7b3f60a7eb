package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/gotarchive/pkg/archive"
	"github.com/odvcencio/gotarchive/pkg/object"
	"github.com/odvcencio/gotarchive/pkg/repo"
)

// defaultArchiveFormat is used when neither --format, the output name nor
// the config selects one.
const defaultArchiveFormat = archive.FormatZip

type archiveFlags struct {
	format           string
	basePath         string
	prefix           string
	output           string
	comment          string
	level            int
	digest           bool
	requireSignature bool
	allowedSigners   string
}

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	var f archiveFlags

	cmd := &cobra.Command{
		Use:   "archive [revision]",
		Short: "Export a commit's tree as a zip or tar archive",
		Long: "Export the tree of a commit (default: HEAD) as a single archive.\n\n" +
			"Formats: zip, tar, tar.gz, tar.xz, tar.bz2, tar.zst, tar.lz4. When --format\n" +
			"is omitted it is inferred from --output, then taken from the [archive]\n" +
			"config section, then defaults to zip.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision := ""
			if len(args) > 0 {
				revision = args[0]
			}
			return runArchive(cmd, opts, f, revision)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.format, "format", "f", "", "archive format")
	fl.StringVarP(&f.basePath, "path", "p", "", "export only this file or directory")
	fl.StringVar(&f.prefix, "prefix", "", "prepend this prefix to every entry path")
	fl.StringVarP(&f.output, "output", "o", "-", "write the archive to this file (- for stdout)")
	fl.StringVar(&f.comment, "comment", "", "zip archive comment")
	fl.IntVarP(&f.level, "level", "l", archive.DefaultLevel, "compression level (0 = codec default)")
	fl.BoolVar(&f.digest, "digest", false, "print the sha256 digest of the archive")
	fl.BoolVar(&f.requireSignature, "require-signature", false, "refuse to export commits without a valid SSH signature")
	fl.StringVar(&f.allowedSigners, "allowed-signers", "", "authorized_keys file listing trusted signing keys")
	return cmd
}

func runArchive(cmd *cobra.Command, opts *rootOptions, f archiveFlags, revision string) error {
	r, err := opts.openRepo()
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig(r)
	if err != nil {
		return err
	}
	mergeArchiveConfig(cmd, &f, cfg.Archive)

	format, err := pickFormat(f.format, f.output)
	if err != nil {
		return err
	}

	logger, err := opts.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ex := &archive.Exporter{Source: r, Logger: logger, Comment: f.comment}
	if f.requireSignature {
		check, err := signatureCheck(f.allowedSigners)
		if err != nil {
			return err
		}
		ex.Check = check
	}

	toStdout := f.output == "" || f.output == "-"
	var out archiveOutput
	if toStdout {
		out = &stdoutOutput{w: cmd.OutOrStdout()}
	} else {
		fo, err := newFileOutput(f.output)
		if err != nil {
			return err
		}
		out = fo
	}

	var sink io.WriteCloser = out
	var digester digest.Digester
	if f.digest {
		digester = digest.Canonical.Digester()
		sink = &teeCloser{w: io.MultiWriter(out, digester.Hash()), c: out}
	}

	exportErr := ex.Export(cmd.Context(), archive.Options{
		Revision: revision,
		BasePath: f.basePath,
		Format:   format,
		Prefix:   f.prefix,
		Level:    f.level,
	}, sink)
	if err := out.commit(exportErr == nil); err != nil && exportErr == nil {
		return err
	}
	if exportErr != nil {
		return fmt.Errorf("archive: %w", exportErr)
	}

	if digester != nil {
		w := cmd.OutOrStdout()
		name := f.output
		if toStdout {
			w, name = cmd.ErrOrStderr(), "-"
		}
		fmt.Fprintf(w, "%s  %s\n", digester.Digest(), name)
	}
	return nil
}

// mergeArchiveConfig fills flags the user did not set from the config file.
func mergeArchiveConfig(cmd *cobra.Command, f *archiveFlags, cfg repo.ArchiveConfig) {
	changed := cmd.Flags().Changed
	if !changed("format") && cfg.Format != "" {
		if _, inferred := archive.FormatFromFilename(f.output); !inferred {
			f.format = cfg.Format
		}
	}
	if !changed("level") && cfg.Level != 0 {
		f.level = cfg.Level
	}
	if !changed("comment") && cfg.Comment != "" {
		f.comment = cfg.Comment
	}
	if !changed("prefix") && cfg.Prefix != "" {
		f.prefix = cfg.Prefix
	}
	if !changed("require-signature") && cfg.RequireSignature {
		f.requireSignature = true
	}
	if !changed("allowed-signers") && cfg.AllowedSigners != "" {
		f.allowedSigners = cfg.AllowedSigners
	}
}

func pickFormat(name, output string) (archive.Format, error) {
	if strings.TrimSpace(name) != "" {
		return archive.ParseFormat(name)
	}
	if f, ok := archive.FormatFromFilename(output); ok {
		return f, nil
	}
	return defaultArchiveFormat, nil
}

func signatureCheck(allowedPath string) (archive.CommitCheck, error) {
	var allowed []ssh.PublicKey
	if strings.TrimSpace(allowedPath) != "" {
		keys, err := repo.LoadAllowedSigners(allowedPath)
		if err != nil {
			return nil, err
		}
		allowed = keys
	}
	return func(h object.Hash, c *object.CommitObj) error {
		if err := repo.VerifyCommitSignature(c, allowed); err != nil {
			return fmt.Errorf("commit %s: %w", shortHash(string(h)), err)
		}
		return nil
	}, nil
}

// archiveOutput is the export sink plus a final commit step that keeps or
// discards what was written.
type archiveOutput interface {
	io.WriteCloser
	commit(ok bool) error
}

type stdoutOutput struct {
	w io.Writer
}

func (s *stdoutOutput) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdoutOutput) Close() error                { return nil }
func (s *stdoutOutput) commit(bool) error           { return nil }

// fileOutput writes to a temp file next to the destination and renames it
// into place only after a complete export.
type fileOutput struct {
	*os.File
	dest string
}

func newFileOutput(dest string) (*fileOutput, error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &fileOutput{File: tmp, dest: dest}, nil
}

func (f *fileOutput) commit(ok bool) error {
	if !ok {
		return os.Remove(f.Name())
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(f.Name(), f.dest); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

type teeCloser struct {
	w io.Writer
	c io.Closer
}

func (t *teeCloser) Write(p []byte) (int, error) { return t.w.Write(p) }
func (t *teeCloser) Close() error                { return t.c.Close() }
