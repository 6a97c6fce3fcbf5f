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

// CachePath returns the side-car cache file path for a manifest.
func CachePath(filename string) string {
	return filename + ".bin"
}

// loadOrRebuildCache returns the binary record stream for a manifest:
// either the bytes of a fresh side-car cache or a stream freshly compiled
// from the text (and, when possible, written back out as the new cache).
//
// The cache is usable when it is at least as new as the manifest and its
// header matches this binary's schema version and checksum. A mismatched
// header is never an error; the cache is silently regenerated.
func (m *ManifestParser) loadOrRebuildCache(filename string, input []byte) ([]byte, error) {
	di, ok := m.fr.(DiskInterface)
	if !ok {
		// No stat capability; compile in memory every time.
		return CompileManifest(filename, input)
	}

	srcMtime, err := di.Stat(filename)
	if err != nil || srcMtime == 0 {
		// The manifest is not a file on disk (tests, generators piping text
		// in); there is no meaningful place for a side-car either.
		return CompileManifest(filename, input)
	}

	binPath := CachePath(filename)
	if binMtime, err := di.Stat(binPath); err == nil && binMtime != 0 && binMtime >= srcMtime {
		if data, err := di.ReadFile(binPath); err == nil {
			if newManifestReader(data).isCurrentVersion() {
				return data, nil
			}
			// Schema drift; fall through and regenerate.
		}
	}

	data, err := CompileManifest(filename, input)
	if err != nil {
		return nil, err
	}
	if err := di.WriteFile(binPath, data); err != nil {
		// A read-only tree still builds, it just re-parses next time.
		warningf("failed to write manifest cache %s: %s", binPath, err)
	}
	return data, nil
}
