package rpmutils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
	"github.com/sassoftware/go-rpmutils"
)

// unix file type bits of cpio headers
const (
	modeTypeMask = 0o170000
	modeDir      = 0o040000
	modeRegular  = 0o100000
	modeSymlink  = 0o120000
)

// Mask selects payload files the way cpio patterns do: '*' and '?' also match
// '/', and patterns are matched against the archive name ("./usr/lib/x.dll").
type Mask struct {
	pattern string
	re      *regexp.Regexp
}

// CompileMask turns a shell pattern into a Mask.
func CompileMask(pattern string) (*Mask, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated character class in mask %q", pattern)
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid mask %q: %w", pattern, err)
	}
	return &Mask{pattern: pattern, re: re}, nil
}

func (m *Mask) String() string { return m.pattern }

// Match reports whether the archive name matches.
func (m *Mask) Match(archiveName string) bool {
	return m.re.MatchString(archiveName)
}

// archiveName normalizes a payload name to the "./path" form cpio prints.
func archiveName(name string) string {
	return "./" + strings.TrimLeft(strings.TrimPrefix(name, "."), "/")
}

func matchAny(masks []*Mask, name string) bool {
	if len(masks) == 0 {
		return true
	}
	for _, m := range masks {
		if m.Match(name) {
			return true
		}
	}
	return false
}

// PayloadExtractor unpacks RPM payloads in process.
type PayloadExtractor struct {
	// Log, when set, receives one line per extracted file.
	Log io.Writer
}

// Extract unpacks the files of rpmPath matching one of masks (every file when
// masks is empty) below destDir, keeping modification times. It returns the
// regular files and symlinks written, as slash-prefixed paths relative to
// destDir, in payload order.
func (e PayloadExtractor) Extract(rpmPath, destDir string, masks []string) ([]string, error) {
	compiled := make([]*Mask, 0, len(masks))
	for _, m := range masks {
		cm, err := CompileMask(m)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cm)
	}

	f, err := os.Open(rpmPath)
	if err != nil {
		return nil, fmt.Errorf("opening rpm: %w", err)
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, fmt.Errorf("reading rpm %s: %w", rpmPath, err)
	}
	payload, err := rpm.PayloadReaderExtended()
	if err != nil {
		return nil, fmt.Errorf("reading payload of %s: %w", rpmPath, err)
	}

	if err := file.EnsureDir(destDir); err != nil {
		return nil, err
	}
	return e.extractPayload(rpmPath, payload, destDir, compiled)
}

// extractPayload writes the matching members of payload below destDir.
func (e PayloadExtractor) extractPayload(rpmPath string, payload rpmutils.PayloadReader, destDir string, compiled []*Mask) ([]string, error) {
	var extracted []string
	// members of a hardlink set carry no data except the last one
	pending := make(map[int][]string)
	for {
		info, err := payload.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return extracted, fmt.Errorf("reading payload of %s: %w", rpmPath, err)
		}

		name := archiveName(info.Name())
		if !matchAny(compiled, name) {
			continue
		}
		rel := strings.TrimPrefix(name, ".")
		target := filepath.Join(destDir, filepath.FromSlash(rel))
		if ok, _ := file.IsSubPath(destDir, target); !ok || target == filepath.Clean(destDir) {
			return extracted, fmt.Errorf("%s: refusing to extract %q outside of %s", rpmPath, info.Name(), destDir)
		}

		mode := info.Mode()
		switch mode & modeTypeMask {
		case modeDir:
			if err := os.MkdirAll(target, os.FileMode(mode&0o777)|0o700); err != nil {
				return extracted, fmt.Errorf("creating %s: %w", target, err)
			}
			continue
		case modeSymlink:
			if err := writeSymlink(target, info.Linkname()); err != nil {
				return extracted, err
			}
		case modeRegular:
			if _, err := writeRegular(target, payload, os.FileMode(mode&0o7777)); err != nil {
				return extracted, err
			}
			if payload.IsLink() {
				pending[info.Inode()] = append(pending[info.Inode()], target)
				extracted = append(extracted, rel)
				continue
			}
			for _, link := range pending[info.Inode()] {
				if err := linkFile(target, link); err != nil {
					return extracted, err
				}
			}
			delete(pending, info.Inode())
		default:
			// devices and fifos have no place in a source tree
			continue
		}

		mtime := time.Unix(int64(info.Mtime()), 0)
		if mode&modeTypeMask != modeSymlink {
			if err := os.Chtimes(target, mtime, mtime); err != nil {
				return extracted, fmt.Errorf("setting times on %s: %w", target, err)
			}
		}
		if e.Log != nil {
			fmt.Fprintln(e.Log, name)
		}
		extracted = append(extracted, rel)
	}
	return extracted, nil
}

func writeRegular(target string, r io.Reader, perm os.FileMode) (int64, error) {
	if err := file.EnsureDir(filepath.Dir(target)); err != nil {
		return 0, err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", target, err)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("writing %s: %w", target, err)
	}
	return n, out.Close()
}

func writeSymlink(target, linkname string) error {
	if err := file.EnsureDir(filepath.Dir(target)); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("creating symlink %s: %w", target, err)
	}
	return nil
}

func linkFile(src, dst string) error {
	if err := file.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	if err := os.Link(src, dst); err != nil {
		return file.CopyFile(src, dst)
	}
	return nil
}

// NEVRA identifies a package by its header tags.
type NEVRA struct {
	Name    string
	Epoch   string
	Version string
	Release string
	Arch    string
}

func (n NEVRA) String() string {
	return fmt.Sprintf("%s-%s-%s.%s", n.Name, n.Version, n.Release, n.Arch)
}

// ReadRequires returns the capabilities a package requires, without the
// rpmlib(...) internals, in header order.
func ReadRequires(rpmPath string) ([]string, error) {
	f, err := os.Open(rpmPath)
	if err != nil {
		return nil, fmt.Errorf("opening rpm: %w", err)
	}
	defer f.Close()

	rpm, err := rpmutils.ReadRpm(f)
	if err != nil {
		return nil, fmt.Errorf("reading rpm %s: %w", rpmPath, err)
	}
	names, err := rpm.Header.GetStrings(rpmutils.REQUIRENAME)
	if err != nil {
		return nil, nil
	}
	var reqs []string
	for _, n := range names {
		if strings.HasPrefix(n, "rpmlib(") {
			continue
		}
		reqs = append(reqs, n)
	}
	return reqs, nil
}
