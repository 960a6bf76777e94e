package lsm

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/concordkv/concordkv/internal/errs"
	"github.com/concordkv/concordkv/internal/levels"
)

// manifestData is the durable snapshot of the LSM's structural state (spec
// §3 "Manifest", §6 "Manifest file"): a monotonic version, the next file id
// to allocate, the active MemTable's identifier, and per-level file counts.
// It is a consistency checkpoint, not the ground truth for which files
// exist — Open reconstructs the level manager by scanning the data
// directory for `level_<n>_*.sst` files, which tolerates a file that was
// added or removed after the last manifest write but before a crash.
type manifestData struct {
	Version          uint64
	NextFileID       uint64
	ActiveMemtableID [32]byte
	LevelFileCounts  [levels.MaxLevels]uint32
}

const manifestFileName = "MANIFEST"
const manifestTmpName = "MANIFEST.tmp"

// writeManifest persists m atomically: write to a temp file, fsync, rename
// over the previous manifest (spec §3: "Replaced atomically").
func writeManifest(dir string, m manifestData) error {
	tmpPath := filepath.Join(dir, manifestTmpName)
	finalPath := filepath.Join(dir, manifestFileName)

	f, err := os.Create(tmpPath)
	if err != nil {
		return errs.Wrap(errs.IOError, "writeManifest", tmpPath, err)
	}
	if err := binary.Write(f, binary.LittleEndian, &m); err != nil {
		f.Close()
		return errs.Wrap(errs.IOError, "writeManifest", "encode", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.Wrap(errs.IOError, "writeManifest", "sync", err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.IOError, "writeManifest", "close", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return errs.Wrap(errs.IOError, "writeManifest", "rename", err)
	}
	return nil
}

// readManifest loads the durable manifest, if one exists. ok is false (with
// a nil error) when the LSM has never been closed cleanly before, which is
// not itself a failure: Open falls back to directory scanning plus WAL
// replay.
func readManifest(dir string) (m manifestData, ok bool, err error) {
	f, openErr := os.Open(filepath.Join(dir, manifestFileName))
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return manifestData{}, false, nil
		}
		return manifestData{}, false, errs.Wrap(errs.IOError, "readManifest", "open", openErr)
	}
	defer f.Close()

	if err := binary.Read(f, binary.LittleEndian, &m); err != nil {
		return manifestData{}, false, errs.Wrap(errs.Corrupted, "readManifest", "decode", err)
	}
	return m, true, nil
}
