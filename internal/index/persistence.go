// Package index implements the Indexing Orchestrator (C8) and the
// Corruption & Staleness Detector (C9). The descriptor and checkpoint
// records are plain JSON files owned entirely by this package;
// internal/store only defines their shape.
package index

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/codeindex/codeindex/internal/store"
)

const (
	descriptorFileName = "index-metadata.json"
	checkpointFileName = "checkpoint.json"
)

func descriptorPath(dataDir string) string {
	return filepath.Join(dataDir, descriptorFileName)
}

func checkpointPath(dataDir string) string {
	return filepath.Join(dataDir, checkpointFileName)
}

// loadDescriptor reads the index descriptor, returning (nil, nil) if it
// doesn't exist.
func loadDescriptor(dataDir string) (*store.IndexDescriptor, error) {
	data, err := os.ReadFile(descriptorPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var d store.IndexDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// saveDescriptor writes the index descriptor atomically (write-temp,
// rename), matching the persistence discipline the vector store uses for
// its own sidecar file.
func saveDescriptor(dataDir string, d *store.IndexDescriptor) error {
	return writeJSONAtomic(descriptorPath(dataDir), d)
}

// loadCheckpoint reads the in-flight checkpoint, returning (nil, nil) if
// none exists.
func loadCheckpoint(dataDir string) (*store.Checkpoint, error) {
	data, err := os.ReadFile(checkpointPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var c store.Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// saveCheckpoint writes the in-flight checkpoint atomically.
func saveCheckpoint(dataDir string, c *store.Checkpoint) error {
	return writeJSONAtomic(checkpointPath(dataDir), c)
}

// deleteCheckpoint removes the checkpoint file. Missing is not an error.
func deleteCheckpoint(dataDir string) error {
	err := os.Remove(checkpointPath(dataDir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ClearCheckpoint removes dataDir's in-flight checkpoint file, if any. It is
// exported for callers outside this package (the public façade's
// ClearIndex operation) that need to discard a stale checkpoint without
// otherwise touching the index.
func ClearCheckpoint(dataDir string) error {
	return deleteCheckpoint(dataDir)
}

func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
