// Copyright 2024 The xdp2p Authors
// This file is part of xdp2p.
//
// xdp2p is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// xdp2p is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with xdp2p. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// EnsurePathAbsoluteOrRelativeTo returns path unchanged if it is already
// absolute, otherwise it is joined onto dir.
func EnsurePathAbsoluteOrRelativeTo(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// AtomicFs is the filesystem used by WriteFileAtomic. It defaults to the OS
// filesystem; tests substitute afero.NewMemMapFs() so persistence code can
// run without touching disk.
var AtomicFs afero.Fs = afero.NewOsFs()

// WriteFileAtomic replaces path with data using write -> fsync -> rename ->
// fsync(dir). Before the new file is installed, whatever currently occupies
// path is preserved as path+".bak" so a crash mid-write can never destroy
// both the previous good copy and the new one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"

	f, err := AtomicFs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("common: open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("common: write temp file: %w", err)
	}
	if s, ok := f.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("common: fsync temp file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("common: close temp file: %w", err)
	}

	if exists(path) {
		if err := AtomicFs.Rename(path, path+".bak"); err != nil {
			return fmt.Errorf("common: rotate backup: %w", err)
		}
	}
	if err := AtomicFs.Rename(tmp, path); err != nil {
		return fmt.Errorf("common: install new file: %w", err)
	}
	syncDir(dir)
	return nil
}

// ReadFileWithBackup reads path, falling back to path+".bak" if path is
// missing or unreadable, and returns ok=false with no error when neither
// copy is present (the caller should start from empty state).
func ReadFileWithBackup(path string) (data []byte, ok bool, err error) {
	data, err = afero.ReadFile(AtomicFs, path)
	if err == nil {
		return data, true, nil
	}
	data, err = afero.ReadFile(AtomicFs, path+".bak")
	if err == nil {
		return data, true, nil
	}
	return nil, false, nil
}

func exists(path string) bool {
	_, err := AtomicFs.Stat(path)
	return err == nil
}

// syncDir best-effort fsyncs a directory entry after a rename so the rename
// itself is durable. Memory-backed filesystems and platforms without
// directory fsync simply no-op here.
func syncDir(dir string) {
	osFs, ok := AtomicFs.(*afero.OsFs)
	if !ok {
		_ = osFs
		return
	}
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
