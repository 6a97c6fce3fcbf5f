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
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cacheTestManifest = "rule cc\n  command = gcc -c $in -o $out\nbuild foo.o: cc foo.c\n"

func parseWithFS(t *testing.T, fs *VirtualFileSystem) *State {
	t.Helper()
	state := NewState()
	parser := NewManifestParser(&state, fs, ManifestParserOptions{})
	require.NoError(t, parser.Load("build.ninja"))
	return &state
}

func TestCacheGate_FirstParseWritesCache(t *testing.T) {
	fs := NewVirtualFileSystem()
	fs.Create("build.ninja", cacheTestManifest)

	state := parseWithFS(t, fs)
	assert.Len(t, state.Edges, 1)

	_, created := fs.filesCreated["build.ninja.bin"]
	assert.True(t, created, "first parse must write the side-car cache")
	assert.True(t, newManifestReader(fs.files["build.ninja.bin"].contents).isCurrentVersion())
}

func TestCacheGate_FreshCacheIsUsed(t *testing.T) {
	fs := NewVirtualFileSystem()
	fs.Create("build.ninja", cacheTestManifest)
	first := parseWithFS(t, fs)

	// Tamper with the text without touching its mtime; a fresh cache means
	// the tampered text is never re-compiled.
	entry := fs.files["build.ninja"]
	entry.contents = []byte("rule cc\n  command = changed\nbuild bar.o: cc bar.c\n")
	fs.files["build.ninja"] = entry

	second := parseWithFS(t, fs)
	if diff := cmp.Diff(graphSummary(first), graphSummary(second)); diff != "" {
		t.Fatalf("cache-backed parse diverged (-first +second):\n%s", diff)
	}
	assert.Equal(t, 1, fs.readCount("build.ninja.bin"))
}

func TestCacheGate_StaleCacheIsRebuilt(t *testing.T) {
	fs := NewVirtualFileSystem()
	fs.Create("build.ninja", cacheTestManifest)
	first := parseWithFS(t, fs)
	assert.NotNil(t, first.LookupNode("foo.o"))

	fs.Tick()
	fs.Create("build.ninja", "rule cc\n  command = gcc -c $in -o $out\nbuild bar.o: cc bar.c\n")

	second := parseWithFS(t, fs)
	assert.Nil(t, second.LookupNode("foo.o"))
	assert.NotNil(t, second.LookupNode("bar.o"))
}

func TestCacheGate_VersionMismatchRegenerates(t *testing.T) {
	fs := NewVirtualFileSystem()
	fs.Create("build.ninja", cacheTestManifest)
	first := parseWithFS(t, fs)

	// Pretend the cache was written by a different schema version.
	entry := fs.files["build.ninja.bin"]
	stale := append([]byte(nil), entry.contents...)
	binary.LittleEndian.PutUint16(stale[3:], manifestSchemaVersion+1)
	entry.contents = stale
	fs.files["build.ninja.bin"] = entry

	second := parseWithFS(t, fs)
	if diff := cmp.Diff(graphSummary(first), graphSummary(second)); diff != "" {
		t.Fatalf("regenerated parse diverged:\n%s", diff)
	}
	// The regenerated cache must load as current again.
	regenerated := fs.files["build.ninja.bin"].contents
	assert.True(t, newManifestReader(regenerated).isCurrentVersion())
}

func TestCacheGate_ChecksumMismatchRegenerates(t *testing.T) {
	fs := NewVirtualFileSystem()
	fs.Create("build.ninja", cacheTestManifest)
	parseWithFS(t, fs)

	entry := fs.files["build.ninja.bin"]
	stale := append([]byte(nil), entry.contents...)
	binary.LittleEndian.PutUint16(stale[5:], manifestSchemaChecksum+7)
	entry.contents = stale
	fs.files["build.ninja.bin"] = entry
	assert.False(t, newManifestReader(stale).isCurrentVersion())

	second := parseWithFS(t, fs)
	assert.NotNil(t, second.LookupNode("foo.o"))
	assert.True(t, newManifestReader(fs.files["build.ninja.bin"].contents).isCurrentVersion())
}

func TestCacheGate_NoSourceOnDiskParsesInMemory(t *testing.T) {
	fs := NewVirtualFileSystem()
	state := NewState()
	parser := NewManifestParser(&state, fs, ManifestParserOptions{})
	require.NoError(t, parser.Parse("generated.ninja", []byte(cacheTestManifest+"\x00")))
	assert.Len(t, state.Edges, 1)
	_, created := fs.filesCreated["generated.ninja.bin"]
	assert.False(t, created, "no side-car may appear for manifests not on disk")
}

func TestCacheGate_RealDisk(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "build.ninja")
	require.NoError(t, os.WriteFile(manifest, []byte(cacheTestManifest), 0o666))

	load := func() *State {
		state := NewState()
		parser := NewManifestParser(&state, nil, ManifestParserOptions{})
		require.NoError(t, parser.Load(manifest))
		return &state
	}

	first := load()
	binPath := CachePath(manifest)
	data, err := os.ReadFile(binPath)
	require.NoError(t, err)
	assert.True(t, newManifestReader(data).isCurrentVersion())

	second := load()
	if diff := cmp.Diff(graphSummary(first), graphSummary(second)); diff != "" {
		t.Fatalf("second load diverged:\n%s", diff)
	}

	// Touch the manifest past the cache and change it; the cache must be
	// regenerated.
	require.NoError(t, os.WriteFile(manifest, []byte(cacheTestManifest+"build all: phony foo.o\n"), 0o666))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(manifest, future, future))

	third := load()
	assert.NotNil(t, third.LookupNode("all"))
	regenerated, err := os.ReadFile(binPath)
	require.NoError(t, err)
	assert.NotEqual(t, data, regenerated)
}

// Interpret-stage diagnostics still render against the original text when
// the parse ran from a fresh cache.
func TestCacheGate_ErrorsPointIntoSourceText(t *testing.T) {
	fs := NewVirtualFileSystem()
	fs.Create("build.ninja", "rule cc\n  command = gcc\nbuild foo.o: cc foo.c\nbuild foo.o: cc bar.c\n")

	state := NewState()
	parser := NewManifestParser(&state, fs, ManifestParserOptions{DupeEdgeAction: DupeEdgeActionError})
	err := parser.Load("build.ninja")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build.ninja:5: multiple rules generate foo.o")

	// A second run answers from the cache but reports the same location.
	state2 := NewState()
	parser2 := NewManifestParser(&state2, fs, ManifestParserOptions{DupeEdgeAction: DupeEdgeActionError})
	err = parser2.Load("build.ninja")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build.ninja:5: multiple rules generate foo.o")
}
