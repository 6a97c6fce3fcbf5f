// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package binja

import (
	"os"
)

// TimeStamp is a file modification time in nanoseconds since the epoch.
// 0 means the file does not exist.
type TimeStamp int64

// FileReader is the interface for reading files from disk. See
// RealDiskInterface for the real implementation.
type FileReader interface {
	// ReadFile reads a file and returns its contents terminated with a NUL
	// byte, as the lexer requires.
	ReadFile(path string) ([]byte, error)
}

// DiskInterface is the interface for accessing the disk.
type DiskInterface interface {
	FileReader

	// Stat stats a file and returns its mtime, or 0 if the file is missing.
	Stat(path string) (TimeStamp, error)

	// WriteFile creates a file with the specified contents, replacing any
	// previous one.
	WriteFile(path string, contents []byte) error
}

// RealDiskInterface is the implementation of DiskInterface that actually
// hits the disk.
type RealDiskInterface struct{}

func (r *RealDiskInterface) ReadFile(path string) ([]byte, error) {
	c, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// The lexer needs a NUL byte at the end of its input to know when it is
	// done.
	return append(c, 0), nil
}

func (r *RealDiskInterface) Stat(path string) (TimeStamp, error) {
	s, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return -1, err
	}
	return TimeStamp(s.ModTime().UnixNano()), nil
}

func (r *RealDiskInterface) WriteFile(path string, contents []byte) error {
	return os.WriteFile(path, contents, 0o666)
}
