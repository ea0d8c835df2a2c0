package distribution

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeql-community/qldist/internal/logging"
	"github.com/codeql-community/qldist/internal/platform"
	"golang.org/x/sync/errgroup"
)

// extractWorkers bounds how many archive entries are written concurrently.
const extractWorkers = 4

// extractZip unpacks archivePath into destDir, preserving each entry's
// permission bits. Entries whose resolved path would land outside destDir
// are skipped. Regular files are written concurrently; directories are
// created up front so entry order does not matter.
func extractZip(ctx context.Context, archivePath, destDir string, log logging.Logger) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	for _, f := range r.File {
		if !f.Mode().IsDir() {
			continue
		}
		target, ok := resolveEntryPath(destDir, f.Name)
		if !ok {
			log.Warn("skipping archive entry outside target directory", "entry", f.Name)
			continue
		}
		if err := os.MkdirAll(target, dirPerm(f.Mode())); err != nil {
			return fmt.Errorf("creating directory %s: %w", f.Name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractWorkers)
	for _, f := range r.File {
		if f.Mode().IsDir() {
			continue
		}
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return extractEntry(f, destDir, log)
		})
	}
	return g.Wait()
}

func extractEntry(f *zip.File, destDir string, log logging.Logger) error {
	target, ok := resolveEntryPath(destDir, f.Name)
	if !ok {
		log.Warn("skipping archive entry outside target directory", "entry", f.Name)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm(f.Mode()))
	if err != nil {
		return fmt.Errorf("creating %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", f.Name, err)
	}

	// OpenFile's mode is subject to the umask; restore the stored bits so
	// executable launchers stay executable.
	if err := platform.Chmod(target, filePerm(f.Mode())); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", f.Name, err)
	}
	return nil
}

// resolveEntryPath joins an archive entry name onto destDir and reports
// whether the result stays inside destDir.
func resolveEntryPath(destDir, name string) (string, bool) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) {
		return "", false
	}
	target := filepath.Join(destDir, cleaned)
	root := filepath.Clean(destDir)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", false
	}
	return target, true
}

// filePerm returns the permission bits stored for an entry, defaulting when
// the archive was produced by a tool that records none.
func filePerm(mode fs.FileMode) fs.FileMode {
	if perm := mode.Perm(); perm != 0 {
		return perm
	}
	return 0644
}

func dirPerm(mode fs.FileMode) fs.FileMode {
	if perm := mode.Perm(); perm != 0 {
		return perm
	}
	return 0755
}
