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
	"strconv"
)

// DupeEdgeAction selects what to do when a build statement re-declares an
// output some earlier edge already produces.
type DupeEdgeAction int32

const (
	DupeEdgeActionWarn DupeEdgeAction = iota
	DupeEdgeActionError
)

// PhonyCycleAction selects what to do with phony edges that name their own
// output as an input.
type PhonyCycleAction int32

const (
	PhonyCycleActionWarn PhonyCycleAction = iota
	PhonyCycleActionError
)

type ManifestParserOptions struct {
	DupeEdgeAction   DupeEdgeAction
	PhonyCycleAction PhonyCycleAction
}

// ManifestParser parses .ninja files into a State, by way of the binary
// cache: the text is compiled to a record stream (or the stream is loaded
// from a fresh .bin side-car) and the stream is interpreted into the graph.
type ManifestParser struct {
	// Immutable.
	fr      FileReader
	options ManifestParserOptions

	// Mutable.
	state *State
	env   *BindingEnv

	// The manifest being interpreted; input is the text handed to Parse, kept
	// even when the records come from a fresh cache, to render positioned
	// diagnostics. It is re-read from filename only when Parse got none.
	filename string
	input    []byte
}

// NewManifestParser returns a parser feeding state. A nil fr uses the real
// disk.
func NewManifestParser(state *State, fr FileReader, options ManifestParserOptions) *ManifestParser {
	if fr == nil {
		fr = &RealDiskInterface{}
	}
	return &ManifestParser{
		fr:      fr,
		options: options,
		state:   state,
		env:     state.Bindings,
	}
}

// Load reads and parses a file through the full pipeline.
func (m *ManifestParser) Load(filename string) error {
	input, err := m.fr.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("loading '%s': %s", filename, err)
	}
	return m.Parse(filename, input)
}

// Parse parses a manifest, given its contents as a NUL-terminated string.
// The sibling binary cache is reused when fresh and rebuilt otherwise.
func (m *ManifestParser) Parse(filename string, input []byte) error {
	defer metricRecord(".ninja parse")()
	m.filename = filename
	m.input = input
	data, err := m.loadOrRebuildCache(filename, input)
	if err != nil {
		return err
	}
	return m.interpret(newManifestReader(data))
}

// errorAt renders a diagnostic against the original manifest text at a byte
// offset recorded in the binary stream, using the text handed to Parse. If
// no text was given it is re-read on first use; if that fails the location
// context is dropped.
func (m *ManifestParser) errorAt(position uint64, message string) error {
	if m.input == nil {
		if input, err := m.fr.ReadFile(m.filename); err == nil {
			m.input = input
		}
	}
	if m.input == nil {
		return fmt.Errorf("%s: %s", m.filename, message)
	}
	pos := int(position)
	if pos >= len(m.input) {
		pos = len(m.input) - 1
	}
	ls := lexerState{ofs: pos, lastToken: pos}
	return ls.error(message, m.filename, m.input)
}

// interpret walks the record stream and populates the State.
func (m *ManifestParser) interpret(r *manifestReader) error {
	if err := r.eatStartParse(); err != nil {
		return err
	}
	for {
		switch t := r.nextRecordType(); t {
		case nodePool:
			rec, err := r.readPool()
			if err != nil {
				return err
			}
			if err := m.interpretPool(r, rec); err != nil {
				return err
			}
		case nodeBuild:
			rec, err := r.readBuild()
			if err != nil {
				return err
			}
			if err := m.interpretBuild(r, rec); err != nil {
				return err
			}
		case nodeRule:
			rec, err := r.readRule()
			if err != nil {
				return err
			}
			if err := m.interpretRule(r, rec); err != nil {
				return err
			}
		case nodeDefault:
			rec, err := r.readDefault()
			if err != nil {
				return err
			}
			if err := m.interpretDefault(r, rec); err != nil {
				return err
			}
		case nodeBinding:
			rec, err := r.readBinding()
			if err != nil {
				return err
			}
			if err := m.interpretBinding(r, rec); err != nil {
				return err
			}
		case nodeInclude:
			rec, err := r.readInclude()
			if err != nil {
				return err
			}
			if err := m.interpretInclude(r, rec); err != nil {
				return err
			}
		case nodeEndParse:
			return r.eatEndParse()
		default:
			return fmt.Errorf("manifest cache corrupted: unexpected record '%c'", t)
		}
	}
}

func (m *ManifestParser) interpretBinding(r *manifestReader, rec bindingRecord) error {
	name := r.str(rec.name)
	eval := r.evalString(rec.value)
	value := eval.Evaluate(m.env)
	// Check ninja_required_version immediately so we can exit
	// before encountering any syntactic surprises.
	if name == "ninja_required_version" {
		if err := checkNinjaVersion(value); err != nil {
			return err
		}
	}
	m.env.Bindings[name] = value
	return nil
}

func (m *ManifestParser) interpretRule(r *manifestReader, rec ruleRecord) error {
	name := r.str(rec.name)
	if m.env.LookupRuleCurrentScope(name) != nil {
		return m.errorAt(rec.rulePosition, fmt.Sprintf("duplicate rule '%s'", name))
	}
	rule := NewRule(name)
	for i, n := 0, r.vecCount(rec.bindings); i < n; i++ {
		key, value := r.bindingAt(rec.bindings, i)
		// Rule bindings stay unevaluated until they are looked up on an edge.
		v := value
		rule.Bindings[key] = &v
	}
	m.env.Rules[name] = rule
	return nil
}

func (m *ManifestParser) interpretPool(r *manifestReader, rec poolRecord) error {
	name := r.str(rec.name)
	if m.state.Pools[name] != nil {
		return m.errorAt(rec.poolPosition, fmt.Sprintf("duplicate pool '%s'", name))
	}
	eval := r.evalString(rec.depth)
	depth, err := strconv.Atoi(eval.Evaluate(m.env))
	if err != nil || depth < 0 {
		return m.errorAt(rec.depthPosition, "invalid pool depth")
	}
	m.state.Pools[name] = NewPool(name, depth)
	return nil
}

func (m *ManifestParser) interpretDefault(r *manifestReader, rec defaultRecord) error {
	evals := r.evalStrings(rec.defaults)
	positions := r.positions(rec.defaultPositions)
	for i := range evals {
		path := evals[i].Evaluate(m.env)
		if path == "" {
			return m.errorAt(positions[i], "empty path")
		}
		if err := m.state.addDefault(CanonicalizePath(path)); err != nil {
			return m.errorAt(positions[i], err.Error())
		}
	}
	return nil
}

func (m *ManifestParser) interpretBuild(r *manifestReader, rec buildRecord) error {
	ruleName := r.str(rec.ruleName)
	rule := m.env.LookupRule(ruleName)
	if rule == nil {
		return m.errorAt(rec.rulePosition, fmt.Sprintf("unknown build rule '%s'", ruleName))
	}

	outs := r.evalStrings(rec.outs)
	ins := r.evalStrings(rec.ins)
	validations := r.evalStrings(rec.validations)

	// Bindings on edges are rare, so allocate per-edge envs only when needed.
	env := m.env
	if n := r.vecCount(rec.bindings); n != 0 {
		env = NewBindingEnv(m.env)
		for i := 0; i < n; i++ {
			key, value := r.bindingAt(rec.bindings, i)
			env.Bindings[key] = value.Evaluate(env)
		}
	}

	edge := m.state.addEdge(rule)
	edge.Env = env

	poolName := edge.GetBinding("pool")
	if poolName != "" {
		pool := m.state.Pools[poolName]
		if pool == nil {
			return m.errorAt(rec.finalPosition, fmt.Sprintf("unknown pool name '%s'", poolName))
		}
		edge.Pool = pool
	}

	implicitOuts := rec.implicitOutCount
	edge.Outputs = make([]*Node, 0, len(outs))
	for i := range outs {
		path := outs[i].Evaluate(env)
		if path == "" {
			return m.errorAt(rec.finalPosition, "empty path")
		}
		path, slashBits := CanonicalizePathBits(path)
		if !m.state.addOut(edge, path, slashBits) {
			if m.options.DupeEdgeAction == DupeEdgeActionError {
				return m.errorAt(rec.finalPosition, "multiple rules generate "+path)
			}
			warningf("multiple rules generate %s. builds involving this target will not be correct; continuing anyway", path)
			if len(outs)-i <= implicitOuts {
				implicitOuts--
			}
		}
	}
	if len(edge.Outputs) == 0 {
		// All outputs of the edge are already created by other edges. Don't add
		// this edge. Do this check before input nodes are connected to the edge.
		m.state.Edges = m.state.Edges[:len(m.state.Edges)-1]
		return nil
	}
	edge.ImplicitOuts = int32(implicitOuts)

	edge.Inputs = make([]*Node, 0, len(ins))
	for i := range ins {
		path := ins[i].Evaluate(env)
		if path == "" {
			return m.errorAt(rec.finalPosition, "empty path")
		}
		path, slashBits := CanonicalizePathBits(path)
		m.state.addIn(edge, path, slashBits)
	}
	edge.ImplicitDeps = int32(rec.implicitInCount)
	edge.OrderOnlyDeps = int32(rec.orderOnlyInCount)

	edge.Validations = make([]*Node, 0, len(validations))
	for i := range validations {
		path := validations[i].Evaluate(env)
		if path == "" {
			return m.errorAt(rec.finalPosition, "empty path")
		}
		path, slashBits := CanonicalizePathBits(path)
		m.state.addValidation(edge, path, slashBits)
	}

	if edge.maybePhonycycleDiagnostic() {
		// CMake 2.8.12.x and 3.0.x incorrectly write phony build statements
		// that reference themselves.  Ninja used to tolerate these in the
		// build graph but that has since been fixed.  Filter them out to
		// support users of those old CMake versions.
		out := edge.Outputs[0]
		for i, n := range edge.Inputs {
			if n == out {
				if m.options.PhonyCycleAction == PhonyCycleActionError {
					return m.errorAt(rec.finalPosition,
						fmt.Sprintf("phony target '%s' names itself as an input", out.Path))
				}
				copy(edge.Inputs[i:], edge.Inputs[i+1:])
				edge.Inputs = edge.Inputs[:len(edge.Inputs)-1]
				warningf("phony target '%s' names itself as an input; ignoring [-w phonycycle=warn]", out.Path)
				break
			}
		}
	}

	// Lookup, validate, and save any dyndep binding.  It will be used later
	// to load generated dependency information dynamically, but it must
	// be one of our manifest-specified inputs.
	dyndep := edge.GetUnescapedDyndep()
	if dyndep != "" {
		n := m.state.GetNode(CanonicalizePathBits(dyndep))
		n.DyndepPending = true
		edge.Dyndep = n
		found := false
		for _, x := range edge.Inputs {
			if x == n {
				found = true
				break
			}
		}
		if !found {
			return m.errorAt(rec.finalPosition, fmt.Sprintf("dyndep '%s' is not an input", dyndep))
		}
	}
	return nil
}

func (m *ManifestParser) interpretInclude(r *manifestReader, rec includeRecord) error {
	eval := r.evalString(rec.path)
	path := eval.Evaluate(m.env)
	input, err := m.fr.ReadFile(path)
	if err != nil {
		return m.errorAt(rec.finalPosition, fmt.Sprintf("loading '%s': %s", path, err))
	}

	env := m.env
	if rec.newScope {
		// subninja scopes are children of the including scope; whatever the
		// included file defines stays behind when it returns.
		env = NewBindingEnv(m.env)
	}
	subparser := &ManifestParser{
		fr:      m.fr,
		options: m.options,
		state:   m.state,
		env:     env,
	}
	// Do not wrap errors inside the included ninja.
	return subparser.Parse(path, input)
}
