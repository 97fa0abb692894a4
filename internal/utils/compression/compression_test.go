package compression

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"
)

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "i686.log")
	content := strings.Repeat("Wrote: /rpmbuild/RPMS/i686/foo-1.0-1.i686.rpm\n", 100)
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	xzFile := src + XzSuffix
	if err := CompressFile(src, xzFile); err != nil {
		t.Fatalf("CompressFile: %v", err)
	}
	info, _ := os.Stat(xzFile)
	if info.Size() >= int64(len(content)) {
		t.Errorf("compressed size %d not smaller than %d", info.Size(), len(content))
	}

	in, err := os.Open(xzFile)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	r, err := xz.NewReader(in)
	if err != nil {
		t.Fatalf("reading xz header: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decompressing: %v", err)
	}
	if string(data) != content {
		t.Error("restored content differs")
	}
}

func TestArchiveLogs(t *testing.T) {
	dir := t.TempDir()
	var logs []string
	for _, name := range []string{"i686.log", "srpm.log", "zip.log"} {
		p := filepath.Join(dir, "build", name)
		os.MkdirAll(filepath.Dir(p), 0o755)
		os.WriteFile(p, []byte(name), 0o644)
		logs = append(logs, p)
	}

	archive := filepath.Join(dir, "archive", "foo")
	written, err := ArchiveLogs(logs, archive)
	if err != nil {
		t.Fatalf("ArchiveLogs: %v", err)
	}
	if len(written) != 3 {
		t.Fatalf("written = %v", written)
	}
	for _, w := range written {
		if !IsCompressedLog(filepath.Base(w)) {
			t.Errorf("%s not recognized as compressed log", w)
		}
	}
	for _, l := range logs {
		if _, err := os.Stat(l); !os.IsNotExist(err) {
			t.Errorf("original %s not removed", l)
		}
	}
}

func TestArchivedLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"i686.log.xz", "srpm.log.xz", "foo-1.2-1.list", "notes.txt.xz"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)
	}
	os.Mkdir(filepath.Join(dir, "dir.log.xz"), 0o755)

	got, err := ArchivedLogs(dir)
	if err != nil {
		t.Fatalf("ArchivedLogs: %v", err)
	}
	want := []string{filepath.Join(dir, "i686.log.xz"), filepath.Join(dir, "srpm.log.xz")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ArchivedLogs = %v, want %v", got, want)
	}

	if got, err := ArchivedLogs(filepath.Join(dir, "missing")); err != nil || got != nil {
		t.Errorf("missing dir = %v, %v", got, err)
	}
}
