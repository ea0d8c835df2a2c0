package distribution

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/codeql-community/qldist/internal/logging"
	"github.com/codeql-community/qldist/internal/registry"
	"github.com/codeql-community/qldist/internal/state"
)

// ProgressFunc receives download progress. It is called once with zero
// bytes received as soon as the total size is known, then after every
// received chunk.
type ProgressFunc func(bytesReceived, totalBytes int64, message string)

// AssetStreamer fetches the byte content of one release asset.
// *registry.Client implements it.
type AssetStreamer interface {
	DownloadAsset(ctx context.Context, asset registry.Asset) (*registry.AssetStream, error)
}

// Installer downloads releases and installs them into rotating directories
// under a storage root. Installs against the same root must not run
// concurrently; the Installer serializes its own calls.
type Installer struct {
	storageRoot string
	store       state.Store
	streamer    AssetStreamer
	log         logging.Logger

	mu sync.Mutex
}

// NewInstaller returns an Installer writing under storageRoot.
func NewInstaller(storageRoot string, store state.Store, streamer AssetStreamer, log logging.Logger) *Installer {
	if log == nil {
		log = logging.Discard()
	}
	return &Installer{
		storageRoot: storageRoot,
		store:       store,
		streamer:    streamer,
		log:         log,
	}
}

// Install downloads release's single asset, extracts it into a fresh
// rotated directory, and records the release as installed. The installed-
// release record is cleared before any old content is removed and set only
// after extraction fully succeeds, so it never points at a partial install.
// The folder index is bumped only after the archive is durably on disk, so
// a failed download never burns a directory name.
func (i *Installer) Install(ctx context.Context, release *registry.Release, progress ProgressFunc) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(release.Assets) != 1 {
		return &registry.UnexpectedAssetCountError{Release: release.Name, Count: len(release.Assets)}
	}

	i.removePrevious()

	tmpDir, err := os.MkdirTemp("", "qldist-download-")
	if err != nil {
		return fmt.Errorf("creating temporary directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, "distribution.zip")
	if err := i.downloadAsset(ctx, release.Assets[0], archivePath, progress); err != nil {
		return err
	}

	index, err := i.store.BumpFolderIndex()
	if err != nil {
		return fmt.Errorf("bumping folder index: %w", err)
	}

	target := filepath.Join(i.storageRoot, distDirName(index))
	if err := extractZip(ctx, archivePath, target, i.log); err != nil {
		return fmt.Errorf("extracting distribution archive: %w", err)
	}

	if err := i.store.SetInstalledRelease(release); err != nil {
		return fmt.Errorf("recording installed release: %w", err)
	}
	i.log.Info("installed distribution", "release", release.Name, "dir", target)
	return nil
}

// removePrevious clears the installed-release record and deletes the
// current install directory. Failures are logged and otherwise ignored; a
// stale directory is tolerable, a record pointing at removed content is
// not, which is why the record is cleared first.
func (i *Installer) removePrevious() {
	if err := i.store.SetInstalledRelease(nil); err != nil {
		i.log.Warn("could not clear installed-release record", "error", err)
		return
	}
	index, err := i.store.FolderIndex()
	if err != nil {
		i.log.Warn("could not read folder index", "error", err)
		return
	}
	dir := filepath.Join(i.storageRoot, distDirName(index))
	if err := os.RemoveAll(dir); err != nil {
		i.log.Warn("could not remove previous distribution", "dir", dir, "error", err)
	}
}

func (i *Installer) downloadAsset(ctx context.Context, asset registry.Asset, destPath string, progress ProgressFunc) error {
	stream, err := i.streamer.DownloadAsset(ctx, asset)
	if err != nil {
		return err
	}
	defer stream.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}

	total := stream.ContentLength
	if progress != nil && total > 0 {
		progress(0, total, progressMessage(0, total))
	}

	var received int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := stream.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				f.Close()
				return fmt.Errorf("writing archive: %w", writeErr)
			}
			received += int64(n)
			if progress != nil && total > 0 {
				progress(received, total, progressMessage(received, total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return fmt.Errorf("reading asset stream: %w", readErr)
		}
	}

	// The folder index is bumped right after this returns; make sure the
	// archive actually hit the disk first.
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	return nil
}

func progressMessage(received, total int64) string {
	const mb = 1 << 20
	return fmt.Sprintf("%.1f MB of %.1f MB", float64(received)/mb, float64(total)/mb)
}
