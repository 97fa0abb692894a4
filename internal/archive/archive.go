// Package archive packs the base architecture packages of a build into the
// combined ZIP archive that is published next to the RPMs.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/open-edge-platform/rpmbuild-bot/internal/utils/file"
)

// RequirementsFile lists what the packed packages require; it is placed at the
// archive root.
const RequirementsFile = "RPM_REQUIREMENTS"

// Extractor unpacks a package below a directory.
type Extractor interface {
	Extract(rpmPath, destDir string, masks []string) ([]string, error)
}

// RequiresFunc returns the requirements of a package.
type RequiresFunc func(rpmPath string) ([]string, error)

// Archiver creates combined archives.
type Archiver interface {
	Create(zipFile string, packages []string, log io.Writer) error
}

// ZipArchiver unpacks packages into an intermediate root and zips that tree.
type ZipArchiver struct {
	Extractor Extractor
	Requires  RequiresFunc // optional
	RootDir   string       // intermediate tree, wiped before and after use
}

// Name returns the archive file name of a package version: dots in the
// version become underscores.
func Name(pkgName, version string) string {
	return fmt.Sprintf("%s-%s.zip", pkgName, strings.ReplaceAll(version, ".", "_"))
}

func (a *ZipArchiver) Create(zipFile string, packages []string, log io.Writer) error {
	if err := file.RemovePath(a.RootDir); err != nil {
		return err
	}
	if err := file.EnsureDir(a.RootDir); err != nil {
		return err
	}
	defer os.RemoveAll(a.RootDir)

	var reqs []string
	for _, pkg := range packages {
		fmt.Fprintf(log, "Unpacking %s...\n", pkg)
		if _, err := a.Extractor.Extract(pkg, a.RootDir, nil); err != nil {
			return fmt.Errorf("unpacking %s: %w", pkg, err)
		}
		if a.Requires != nil {
			r, err := a.Requires(pkg)
			if err != nil {
				return err
			}
			reqs = append(reqs, r...)
		}
	}

	if reqs = uniqueSorted(reqs); len(reqs) > 0 {
		content := strings.Join(reqs, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(a.RootDir, RequirementsFile), []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", RequirementsFile, err)
		}
	}

	if err := file.RemovePath(zipFile); err != nil {
		return err
	}
	fmt.Fprintf(log, "Creating %s...\n", zipFile)
	if err := writeZip(zipFile, a.RootDir); err != nil {
		os.Remove(zipFile)
		return err
	}
	return nil
}

func uniqueSorted(items []string) []string {
	sort.Strings(items)
	out := items[:0]
	for i, it := range items {
		if i == 0 || it != items[i-1] {
			out = append(out, it)
		}
	}
	return out
}

// writeZip stores the tree below root with maximum compression. Symlinks are
// stored as links, like zip -y does.
func writeZip(zipFile, root string) error {
	if err := file.EnsureDir(filepath.Dir(zipFile)); err != nil {
		return err
	}
	out, err := os.OpenFile(zipFile, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", zipFile, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("zip header for %s: %w", path, err)
		}
		hdr.Name = filepath.ToSlash(rel)

		switch {
		case info.IsDir():
			hdr.Name += "/"
			hdr.Method = zip.Store
			_, err = zw.CreateHeader(hdr)
			return err
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			hdr.Method = zip.Store
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, target)
			return err
		case info.Mode().IsRegular():
			hdr.Method = zip.Deflate
			w, err := zw.CreateHeader(hdr)
			if err != nil {
				return err
			}
			in, err := os.Open(path)
			if err != nil {
				return err
			}
			defer in.Close()
			_, err = io.Copy(w, in)
			return err
		}
		return nil
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("writing %s: %w", zipFile, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing %s: %w", zipFile, err)
	}
	return out.Close()
}
