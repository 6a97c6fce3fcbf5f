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
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"
)

// parserTest is a test fixture with a State and an in-memory file system.
type parserTest struct {
	t     *testing.T
	state State
	fs    *VirtualFileSystem
}

func newParserTest(t *testing.T) *parserTest {
	return &parserTest{
		t:     t,
		state: NewState(),
		fs:    NewVirtualFileSystem(),
	}
}

func (p *parserTest) assertParse(input string) {
	p.t.Helper()
	p.assertParseWithOptions(input, ManifestParserOptions{})
}

func (p *parserTest) assertParseWithOptions(input string, options ManifestParserOptions) {
	p.t.Helper()
	parser := NewManifestParser(&p.state, p.fs, options)
	// In unit tests, inject the terminating NUL byte. In real code, it is
	// injected by the FileReader.
	if err := parser.Parse("input", []byte(input+"\x00")); err != nil {
		p.t.Fatal(err)
	}
	verifyGraph(p.t, &p.state)
}

// parseError parses input expecting a failure and returns the message.
func (p *parserTest) parseError(input string) string {
	p.t.Helper()
	return p.parseErrorWithOptions(input, ManifestParserOptions{})
}

func (p *parserTest) parseErrorWithOptions(input string, options ManifestParserOptions) string {
	p.t.Helper()
	parser := NewManifestParser(&p.state, p.fs, options)
	err := parser.Parse("input", []byte(input+"\x00"))
	if err == nil {
		p.t.Fatal("expected parse error")
	}
	return err.Error()
}

// node returns an existing node by path.
func (p *parserTest) node(path string) *Node {
	p.t.Helper()
	n := p.state.LookupNode(path)
	if n == nil {
		p.t.Fatalf("unknown node '%s'", path)
	}
	return n
}

func verifyGraph(t *testing.T, state *State) {
	t.Helper()
	for _, e := range state.Edges {
		if len(e.Outputs) == 0 {
			t.Fatal("all edges need at least one output")
		}
		for _, inNode := range e.Inputs {
			found := false
			for _, oe := range inNode.OutEdges {
				if oe == e {
					found = true
				}
			}
			if !found {
				t.Fatal("each edge's inputs must have the edge as out-edge")
			}
		}
		for _, outNode := range e.Outputs {
			if outNode.InEdge != e {
				t.Fatal("each edge's output must have the edge as in-edge")
			}
		}
	}

	// The union of all in- and out-edges of each node should be exactly
	// state.Edges.
	nodeEdgeSet := map[*Edge]struct{}{}
	for _, n := range state.Paths {
		if n.InEdge != nil {
			nodeEdgeSet[n.InEdge] = struct{}{}
		}
		for _, oe := range n.OutEdges {
			nodeEdgeSet[oe] = struct{}{}
		}
	}
	if len(state.Edges) != len(nodeEdgeSet) {
		t.Fatal("the union of all in- and out-edges must match State.Edges")
	}
}

// graphSummary renders the parsed state in a deterministic form so two
// parses can be compared structurally.
func graphSummary(s *State) string {
	var b strings.Builder

	var rules []string
	for name := range s.Bindings.Rules {
		rules = append(rules, name)
	}
	sort.Strings(rules)
	for _, name := range rules {
		r := s.Bindings.Rules[name]
		var keys []string
		for k := range r.Bindings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "rule %s\n", name)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s = %s\n", k, r.Bindings[k].Serialize())
		}
	}

	var pools []string
	for name := range s.Pools {
		pools = append(pools, name)
	}
	sort.Strings(pools)
	for _, name := range pools {
		fmt.Fprintf(&b, "pool %s depth=%d\n", name, s.Pools[name].Depth)
	}

	var vars []string
	for k := range s.Bindings.Bindings {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	for _, k := range vars {
		fmt.Fprintf(&b, "var %s = %s\n", k, s.Bindings.Bindings[k])
	}

	for _, e := range s.Edges {
		fmt.Fprintf(&b, "edge %s:", e.Rule.Name)
		for _, n := range e.Outputs {
			fmt.Fprintf(&b, " %s", n.Path)
		}
		fmt.Fprintf(&b, " <-")
		for _, n := range e.Inputs {
			fmt.Fprintf(&b, " %s", n.Path)
		}
		fmt.Fprintf(&b, " [implicit_outs=%d implicit=%d order_only=%d pool=%s]",
			e.ImplicitOuts, e.ImplicitDeps, e.OrderOnlyDeps, e.Pool.Name)
		for _, n := range e.Validations {
			fmt.Fprintf(&b, " |@ %s", n.Path)
		}
		fmt.Fprintf(&b, " cmd=%s\n", e.GetBinding("command"))
	}

	for _, n := range s.Defaults {
		fmt.Fprintf(&b, "default %s\n", n.Path)
	}
	return b.String()
}

type vfsEntry struct {
	mtime     TimeStamp
	contents  []byte
	statError error
}

// VirtualFileSystem is an implementation of DiskInterface that uses an
// in-memory representation of disk state. It also logs file accesses so it
// can be used by tests to verify disk access patterns.
type VirtualFileSystem struct {
	filesRead    []string
	files        map[string]vfsEntry
	filesCreated map[string]struct{}
	now          TimeStamp
}

func NewVirtualFileSystem() *VirtualFileSystem {
	return &VirtualFileSystem{
		files:        map[string]vfsEntry{},
		filesCreated: map[string]struct{}{},
		now:          1,
	}
}

// Tick "time" forwards; subsequent file operations will be newer than
// previous ones.
func (v *VirtualFileSystem) Tick() TimeStamp {
	v.now++
	return v.now
}

// Create "creates" a file with contents.
func (v *VirtualFileSystem) Create(path string, contents string) {
	f := v.files[path]
	f.mtime = v.now
	f.contents = []byte(contents)
	v.files[path] = f
	v.filesCreated[path] = struct{}{}
}

func (v *VirtualFileSystem) Stat(path string) (TimeStamp, error) {
	if f, ok := v.files[path]; ok {
		return f.mtime, f.statError
	}
	return 0, nil
}

func (v *VirtualFileSystem) WriteFile(path string, contents []byte) error {
	f := v.files[path]
	f.mtime = v.now
	f.contents = append([]byte(nil), contents...)
	v.files[path] = f
	v.filesCreated[path] = struct{}{}
	return nil
}

func (v *VirtualFileSystem) ReadFile(path string) ([]byte, error) {
	v.filesRead = append(v.filesRead, path)
	f, ok := v.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	// Return a NUL-terminated copy, like RealDiskInterface does.
	n := make([]byte, len(f.contents)+1)
	copy(n, f.contents)
	return n, nil
}

func (v *VirtualFileSystem) readCount(path string) int {
	count := 0
	for _, p := range v.filesRead {
		if p == path {
			count++
		}
	}
	return count
}
