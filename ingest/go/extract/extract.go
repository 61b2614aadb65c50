// Package extract unpacks downloaded archives into a sibling
// "<file>_extracted" directory, guarding against path-traversal entries.
package extract

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"go.capitolfeed.build/go/sklog"
)

// Result is the outcome of extracting one archive (spec.md section 4.6).
type Result struct {
	ArchivePath string
	OK          bool
	Destination *string
	Error       *string
}

// Options configures a Run call.
type Options struct {
	RemoveArchiveAfterExtract bool
}

// Run extracts each archive in archivePaths sequentially. The extractor is
// not parallelized; nothing about the workload requires it.
func Run(archivePaths []string, opts Options) []Result {
	out := make([]Result, 0, len(archivePaths))
	for _, p := range archivePaths {
		out = append(out, extractOne(p, opts))
	}
	return out
}

func extractOne(archivePath string, opts Options) Result {
	res := Result{ArchivePath: archivePath}

	dest := destinationFor(archivePath)
	if err := os.MkdirAll(dest, 0755); err != nil {
		msg := err.Error()
		res.Error = &msg
		return res
	}

	var err error
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		err = extractZip(archivePath, dest)
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		err = extractTarGz(archivePath, dest)
	case strings.HasSuffix(archivePath, ".tar"):
		err = extractTar(archivePath, dest)
	default:
		err = fmt.Errorf("unsupported archive extension: %s", archivePath)
	}

	if err != nil {
		msg := err.Error()
		res.Error = &msg
		return res
	}

	res.OK = true
	res.Destination = &dest

	if opts.RemoveArchiveAfterExtract {
		if rmErr := os.Remove(archivePath); rmErr != nil {
			sklog.Warningf("extract: failed to remove archive %s after extraction: %s", archivePath, rmErr)
		}
	}
	return res
}

func destinationFor(archivePath string) string {
	for _, suf := range []string{".tar.gz", ".tgz", ".tar", ".zip"} {
		if strings.HasSuffix(archivePath, suf) {
			return archivePath[:len(archivePath)-len(suf)] + "_extracted"
		}
	}
	return archivePath + "_extracted"
}

// safeJoin rejects any entryName that is absolute or that, once cleaned,
// still climbs above root via a leading ".." component -- the
// archive-traversal guard required before writing any entry. Unlike
// clamping a traversal entry back inside root, this refuses it outright so
// the caller's warn log actually reflects what the archive tried to do.
func safeJoin(root, entryName string) (string, error) {
	if path.IsAbs(entryName) {
		return "", fmt.Errorf("entry has absolute path: %s", entryName)
	}
	cleaned := path.Clean(filepath.ToSlash(entryName))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("entry traverses outside extraction root: %s", entryName)
	}
	joined := filepath.Join(root, cleaned)
	if !strings.HasPrefix(joined, filepath.Clean(root)+string(os.PathSeparator)) && joined != filepath.Clean(root) {
		return "", fmt.Errorf("entry escapes extraction root: %s", entryName)
	}
	return joined, nil
}

func extractZip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Mode()&os.ModeSymlink != 0 {
			sklog.Warningf("extract: skipping symlink entry %s in %s", f.Name, archivePath)
			continue
		}
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			sklog.Warningf("extract: skipping unsafe entry %s in %s: %s", f.Name, archivePath, err)
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := copyZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func copyZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func extractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	return extractTarReader(tar.NewReader(gz), dest, archivePath)
}

func extractTar(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return extractTarReader(tar.NewReader(f), dest, archivePath)
}

func extractTarReader(tr *tar.Reader, dest, archivePath string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			sklog.Warningf("extract: skipping symlink entry %s in %s", hdr.Name, archivePath)
			continue
		case tar.TypeLink:
			linkTarget, err := safeJoin(dest, hdr.Linkname)
			if err != nil {
				sklog.Warningf("extract: skipping out-of-root hardlink %s -> %s in %s", hdr.Name, hdr.Linkname, archivePath)
				continue
			}
			_ = linkTarget
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			sklog.Warningf("extract: skipping unsafe entry %s in %s: %s", hdr.Name, archivePath, err)
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
