package archive

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/odvcencio/gotarchive/pkg/object"
)

func exportTo(t *testing.T, ex *Exporter, opts Options) *memSink {
	t.Helper()
	var sink memSink
	if err := ex.Export(context.Background(), opts, &sink); err != nil {
		t.Fatalf("Export(%+v): %v", opts, err)
	}
	if sink.closes != 1 {
		t.Fatalf("sink closed %d times, want 1", sink.closes)
	}
	return &sink
}

func TestExportTarGzipScenario(t *testing.T) {
	src, _ := newScenarioSource(t)
	sink := exportTo(t, &Exporter{Source: src}, Options{Format: FormatTarGzip})

	got := extract(t, FormatTarGzip, sink.Bytes())
	if names := entryNames(got); !reflect.DeepEqual(names, []string{"a.txt", "bin/tool", "link"}) {
		t.Fatalf("entries = %v", names)
	}
	want := time.Unix(scenarioTime, 0)
	for _, e := range got {
		if !e.modTime.Equal(want) {
			t.Fatalf("%s mtime = %v, want %v", e.name, e.modTime, want)
		}
	}
	if got[0].mode != 0o644 || got[0].data != "hello\n" {
		t.Fatalf("a.txt = %v %q", got[0].mode, got[0].data)
	}
	if got[1].mode != 0o755 || got[1].data != "#!/bin/sh\n" {
		t.Fatalf("bin/tool = %v %q", got[1].mode, got[1].data)
	}
	if got[2].mode&fs.ModeSymlink == 0 || got[2].link != "a.txt" || got[2].data != "" {
		t.Fatalf("link = %+v", got[2])
	}
}

func TestExportRoundTripEveryFormat(t *testing.T) {
	files := []testFile{
		{path: "README.md", data: "# project\n"},
		{path: "src/main.go", data: "package main\n"},
		{path: "src/run.sh", mode: object.TreeModeExecutable, data: "#!/bin/sh\nexit 0\n"},
		{path: "src/current", mode: object.TreeModeSymlink, data: "main.go"},
		{path: "vendor/lib", mode: object.TreeModeGitlink},
		{path: "docs/ünïcode name.txt", data: strings.Repeat("text ", 4000)},
		{path: "empty", data: ""},
	}
	wantNames := []string{"README.md", "src/main.go", "src/run.sh", "src/current", "docs/ünïcode name.txt", "empty"}

	for _, f := range allFormats {
		t.Run(f.String(), func(t *testing.T) {
			src := newMemSource()
			src.addCommit(src.buildTree(t, files), scenarioTime)
			sink := exportTo(t, &Exporter{Source: src}, Options{Format: f})

			got := extract(t, f, sink.Bytes())
			if names := entryNames(got); !reflect.DeepEqual(names, wantNames) {
				t.Fatalf("entries = %v, want %v", names, wantNames)
			}
			byName := make(map[string]extracted)
			for _, e := range got {
				byName[e.name] = e
			}
			for _, tf := range files {
				e, ok := byName[tf.path]
				if !ok {
					continue
				}
				switch tf.mode {
				case object.TreeModeSymlink:
					if e.mode&fs.ModeSymlink == 0 || e.link != tf.data {
						t.Fatalf("%s: mode %v link %q", tf.path, e.mode, e.link)
					}
				case object.TreeModeExecutable:
					if e.mode != 0o755 || e.data != tf.data {
						t.Fatalf("%s: mode %v", tf.path, e.mode)
					}
				default:
					if e.mode != 0o644 || e.data != tf.data {
						t.Fatalf("%s: mode %v, %d bytes", tf.path, e.mode, len(e.data))
					}
				}
				if !e.modTime.Equal(time.Unix(scenarioTime, 0)) {
					t.Fatalf("%s mtime = %v", tf.path, e.modTime)
				}
			}
		})
	}
}

func TestExportIsDeterministic(t *testing.T) {
	for _, f := range allFormats {
		src, _ := newScenarioSource(t)
		ex := &Exporter{Source: src}
		first := exportTo(t, ex, Options{Format: f})
		second := exportTo(t, ex, Options{Format: f})
		if !bytes.Equal(first.Bytes(), second.Bytes()) {
			t.Fatalf("%s: repeated exports differ", f)
		}
	}
}

func TestExportBasePathKeepsRootRelativePaths(t *testing.T) {
	src := newMemSource()
	src.addCommit(src.buildTree(t, walkFiles), scenarioTime)

	sink := exportTo(t, &Exporter{Source: src}, Options{Format: FormatTar, BasePath: "sub/dir"})
	if names := entryNames(extract(t, FormatTar, sink.Bytes())); !reflect.DeepEqual(names, []string{"sub/dir/x"}) {
		t.Fatalf("entries = %v", names)
	}

	// A base path that matches nothing still yields a valid, empty archive.
	sink = exportTo(t, &Exporter{Source: src}, Options{Format: FormatZip, BasePath: "nowhere"})
	if got := extract(t, FormatZip, sink.Bytes()); len(got) != 0 {
		t.Fatalf("entries = %v, want none", entryNames(got))
	}
}

func TestExportPrefix(t *testing.T) {
	src, _ := newScenarioSource(t)
	sink := exportTo(t, &Exporter{Source: src}, Options{Format: FormatTar, Prefix: "proj-1.0/"})

	want := []string{"proj-1.0/a.txt", "proj-1.0/bin/tool", "proj-1.0/link"}
	if names := entryNames(extract(t, FormatTar, sink.Bytes())); !reflect.DeepEqual(names, want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
}

func TestExportResolutionFailureWritesNothing(t *testing.T) {
	src, _ := newScenarioSource(t)
	tests := []struct {
		name string
		opts Options
		ex   Exporter
	}{
		{"unknown revision", Options{Revision: "nope", Format: FormatTarGzip}, Exporter{Source: src}},
		{"escaping base path", Options{BasePath: "../etc", Format: FormatZip}, Exporter{Source: src}},
		{"escaping prefix", Options{Prefix: "../out/", Format: FormatTar}, Exporter{Source: src}},
		{"no source", Options{Format: FormatZip}, Exporter{}},
		{"rejected commit", Options{Format: FormatTarXz}, Exporter{Source: src, Check: func(object.Hash, *object.CommitObj) error {
			return errors.New("unsigned")
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sink memSink
			err := tt.ex.Export(context.Background(), tt.opts, &sink)
			if !errors.Is(err, ErrResolution) {
				t.Fatalf("Export error = %v, want ErrResolution", err)
			}
			if OK(err) {
				t.Fatal("OK reported success")
			}
			if sink.Len() != 0 {
				t.Fatalf("sink received %d bytes", sink.Len())
			}
			if sink.closes != 1 {
				t.Fatalf("sink closed %d times, want 1", sink.closes)
			}
		})
	}
}

func TestExportCodecInitFailure(t *testing.T) {
	src, _ := newScenarioSource(t)
	for _, opts := range []Options{
		{Format: FormatTarGzip, Level: 42},
		{Format: FormatZip, Level: 42},
		{Format: FormatTar, Level: 3},
		{Format: Format(77)},
	} {
		var sink memSink
		err := (&Exporter{Source: src}).Export(context.Background(), opts, &sink)
		if !errors.Is(err, ErrCodecInit) {
			t.Fatalf("Export(%+v) error = %v, want ErrCodecInit", opts, err)
		}
		if sink.Len() != 0 || sink.closes != 1 {
			t.Fatalf("Export(%+v): %d bytes, %d closes", opts, sink.Len(), sink.closes)
		}
	}
}

func TestExportWriteFailureTearsDown(t *testing.T) {
	src := newMemSource()
	src.addCommit(src.buildTree(t, []testFile{
		{path: "big.bin", data: noise(1 << 18)},
		{path: "after.txt", data: "never written"},
	}), scenarioTime)

	for _, f := range []Format{FormatTar, FormatTarGzip, FormatZip} {
		sink := &failingSink{limit: 1024}
		logger, hook := logtest.NewNullLogger()
		err := (&Exporter{Source: src, Logger: logger}).Export(context.Background(), Options{Format: f}, sink)
		if !errors.Is(err, ErrWrite) {
			t.Fatalf("%s: error = %v, want ErrWrite", f, err)
		}
		if !errors.Is(err, errSinkFull) {
			t.Fatalf("%s: error = %v, want the sink failure in the chain", f, err)
		}
		if sink.closes != 1 {
			t.Fatalf("%s: sink closed %d times, want 1", f, sink.closes)
		}
		entries := hook.AllEntries()
		if len(entries) != 1 || entries[0].Level != logrus.ErrorLevel {
			t.Fatalf("%s: logged %d entries, want one error", f, len(entries))
		}
		if entries[0].Data["format"] != f.String() || entries[0].Data["commit"] == nil {
			t.Fatalf("%s: log fields = %v", f, entries[0].Data)
		}
	}
}

func TestExportReadFailure(t *testing.T) {
	src, _ := newScenarioSource(t)
	h := object.HashObject(object.TypeBlob, []byte("#!/bin/sh\n"))
	src.truncate[h] = 3

	var sink memSink
	logger, hook := logtest.NewNullLogger()
	err := (&Exporter{Source: src, Logger: logger}).Export(context.Background(), Options{Format: FormatTar}, &sink)
	if !errors.Is(err, ErrRead) {
		t.Fatalf("error = %v, want ErrRead", err)
	}
	var ae *Error
	if !errors.As(err, &ae) || ae.Path != "bin/tool" {
		t.Fatalf("error path = %+v, want bin/tool", ae)
	}
	if sink.closes != 1 {
		t.Fatalf("sink closed %d times", sink.closes)
	}
	if last := hook.LastEntry(); last == nil || last.Data["path"] != "bin/tool" {
		t.Fatalf("log entry = %+v", last)
	}
}

func TestExportCanceled(t *testing.T) {
	src, _ := newScenarioSource(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var sink memSink
	err := (&Exporter{Source: src}).Export(ctx, Options{Format: FormatTarGzip}, &sink)
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want ErrCanceled", err)
	}
	if sink.Len() != 0 || sink.closes != 1 {
		t.Fatalf("%d bytes, %d closes", sink.Len(), sink.closes)
	}

	// Cancel while the first entry is being read.
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	src.onOpen = func(object.Hash) { cancel() }
	sink = memSink{}
	err = (&Exporter{Source: src}).Export(ctx, Options{Format: FormatTar}, &sink)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("error = %v, want ErrCanceled", err)
	}
	if sink.closes != 1 {
		t.Fatalf("sink closed %d times", sink.closes)
	}
}

func TestExportZipComments(t *testing.T) {
	src, commit := newScenarioSource(t)

	sink := exportTo(t, &Exporter{Source: src, Comment: "nightly"}, Options{Format: FormatZip, Revision: "main"})
	for _, e := range extract(t, FormatZip, sink.Bytes()) {
		if e.comment != string(commit) {
			t.Fatalf("%s comment = %q, want commit id", e.name, e.comment)
		}
	}
	data := sink.Bytes()
	if !bytes.HasSuffix(data, []byte("nightly")) {
		t.Fatal("archive comment missing from the end of the zip")
	}
}

func TestExportEmptyTree(t *testing.T) {
	src := newMemSource()
	src.addCommit(src.addTree(t), scenarioTime)
	for _, f := range allFormats {
		sink := exportTo(t, &Exporter{Source: src}, Options{Format: f})
		if got := extract(t, f, sink.Bytes()); len(got) != 0 {
			t.Fatalf("%s: %d entries, want 0", f, len(got))
		}
	}
}

func TestExportLogsSuccessAtDebug(t *testing.T) {
	src, _ := newScenarioSource(t)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	exportTo(t, &Exporter{Source: src, Logger: logger}, Options{Format: FormatTar})
	last := hook.LastEntry()
	if last == nil || last.Level != logrus.DebugLevel || last.Data["entries"] != 3 {
		t.Fatalf("log entry = %+v", last)
	}
}
