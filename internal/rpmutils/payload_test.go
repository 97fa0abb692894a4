package rpmutils

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sassoftware/go-rpmutils"
)

type fakeMember struct {
	name     string
	mode     int
	inode    int
	size     int64
	data     string
	link     bool
	linkname string
}

func (m fakeMember) Name() string      { return m.name }
func (m fakeMember) Size() int64       { return m.size }
func (m fakeMember) UserName() string  { return "root" }
func (m fakeMember) GroupName() string { return "root" }
func (m fakeMember) Flags() int        { return 0 }
func (m fakeMember) Mtime() int        { return 1700000000 }
func (m fakeMember) Digest() string    { return "" }
func (m fakeMember) Mode() int         { return m.mode }
func (m fakeMember) Linkname() string  { return m.linkname }
func (m fakeMember) Device() int       { return 0 }
func (m fakeMember) Inode() int        { return m.inode }

// fakePayload replays members the way the cpio reader of go-rpmutils does:
// hardlink members without contents report IsLink and read nothing.
type fakePayload struct {
	members []fakeMember
	next    int
	cur     fakeMember
	r       io.Reader
}

func (p *fakePayload) Next() (rpmutils.FileInfo, error) {
	if p.next >= len(p.members) {
		return nil, io.EOF
	}
	p.cur = p.members[p.next]
	p.next++
	p.r = strings.NewReader(p.cur.data)
	return p.cur, nil
}

func (p *fakePayload) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePayload) IsLink() bool { return p.cur.link }

func TestExtractPayloadHardlinks(t *testing.T) {
	dest := t.TempDir()
	payload := &fakePayload{members: []fakeMember{
		{name: "/usr/bin/tool-a", mode: modeRegular | 0o755, inode: 7, size: 5, link: true},
		{name: "/usr/bin/tool-b", mode: modeRegular | 0o755, inode: 7, size: 5, data: "hello"},
		{name: "/usr/share/doc/README", mode: modeRegular | 0o644, inode: 8, size: 3, data: "doc"},
	}}

	got, err := PayloadExtractor{}.extractPayload("test.rpm", payload, dest, nil)
	if err != nil {
		t.Fatalf("extractPayload: %v", err)
	}
	want := []string{"/usr/bin/tool-a", "/usr/bin/tool-b", "/usr/share/doc/README"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("extracted = %v, want %v", got, want)
	}

	for _, name := range []string{"tool-a", "tool-b"} {
		data, err := os.ReadFile(filepath.Join(dest, "usr", "bin", name))
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if string(data) != "hello" {
			t.Errorf("%s contains %q, want %q", name, data, "hello")
		}
	}

	a, err := os.Stat(filepath.Join(dest, "usr", "bin", "tool-a"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.Stat(filepath.Join(dest, "usr", "bin", "tool-b"))
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(a, b) {
		t.Error("hardlinked members must share one file")
	}
	if !b.ModTime().Equal(time.Unix(1700000000, 0)) {
		t.Errorf("mtime = %v, want payload mtime", b.ModTime())
	}
}

func TestExtractPayloadMasksAndEscapes(t *testing.T) {
	dest := t.TempDir()
	masks := []*Mask{}
	m, err := CompileMask("*.dll")
	if err != nil {
		t.Fatal(err)
	}
	masks = append(masks, m)

	payload := &fakePayload{members: []fakeMember{
		{name: "/usr/lib/keep.dll", mode: modeRegular | 0o644, inode: 1, size: 1, data: "k"},
		{name: "/usr/lib/skip.so", mode: modeRegular | 0o644, inode: 2, size: 1, data: "s"},
	}}
	got, err := PayloadExtractor{}.extractPayload("test.rpm", payload, dest, masks)
	if err != nil {
		t.Fatalf("extractPayload: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"/usr/lib/keep.dll"}) {
		t.Errorf("extracted = %v", got)
	}
	if _, err := os.Stat(filepath.Join(dest, "usr", "lib", "skip.so")); !os.IsNotExist(err) {
		t.Errorf("unmatched member was written: %v", err)
	}

	evil := &fakePayload{members: []fakeMember{
		{name: "/../../etc/passwd", mode: modeRegular | 0o644, inode: 3, size: 1, data: "x"},
	}}
	if _, err := (PayloadExtractor{}).extractPayload("test.rpm", evil, dest, nil); err == nil {
		t.Error("expected refusal to extract outside of the destination")
	}
}
