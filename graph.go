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

// Node is a file referenced by the build graph, either as input or output.
type Node struct {
	Path string

	// SlashBits records which slashes in Path were originally backslashes on
	// systems that allow them in paths.
	SlashBits uint64

	// InEdge is the edge that produces this node, or nil.
	InEdge *Edge

	// OutEdges are the edges that take this node as input.
	OutEdges []*Edge

	// ValidationOutEdges are the edges that list this node as a validation.
	ValidationOutEdges []*Edge

	// DyndepPending is set when this node's dyndep file is yet to be loaded.
	DyndepPending bool
}

// Edge is an edge in the dependency graph; links between Nodes using Rules.
type Edge struct {
	Rule        *Rule
	Pool        *Pool
	Inputs      []*Node
	Outputs     []*Node
	Validations []*Node
	Dyndep      *Node
	Env         *BindingEnv
	ID          int32

	// The inputs slice is layered: explicit deps first, then ImplicitDeps
	// implicit ones, then OrderOnlyDeps order-only ones. Outputs hold the
	// explicit outputs followed by ImplicitOuts implicit ones.
	ImplicitDeps  int32
	OrderOnlyDeps int32
	ImplicitOuts  int32
}

type escapeKind bool

const (
	shellEscape escapeKind = true
	doNotEscape escapeKind = false
)

// edgeEnv is the Env visible to a binding evaluated on an edge. It resolves
// $in/$out from the node lists and everything else through the
// edge-then-rule-then-scope fallback.
type edgeEnv struct {
	lookups     []string
	edge        *Edge
	escapeInOut escapeKind
	recursive   bool
}

func (e *edgeEnv) LookupVariable(v string) string {
	edge := e.edge
	switch v {
	case "in", "in_newline":
		explicit := len(edge.Inputs) - int(edge.ImplicitDeps) - int(edge.OrderOnlyDeps)
		sep := byte(' ')
		if v == "in_newline" {
			sep = '\n'
		}
		return makePathList(edge.Inputs[:explicit], sep, e.escapeInOut)
	case "out":
		explicit := len(edge.Outputs) - int(edge.ImplicitOuts)
		return makePathList(edge.Outputs[:explicit], ' ', e.escapeInOut)
	}

	// Technical note about the lookups slice.
	//
	// This is used to detect cycles during recursive variable expansion. A
	// variable being expanded is added before the lookup and kept there for
	// the duration, so seeing it again means the rule's bindings loop.
	if e.recursive {
		for _, l := range e.lookups {
			if l == v {
				cycle := ""
				for _, l2 := range e.lookups {
					cycle += l2 + " -> "
				}
				fatalf("cycle in rule variables: %s%s", cycle, v)
			}
		}
	}

	// See notes on BindingEnv.LookupWithFallback.
	eval := edge.Rule.GetBinding(v)
	recordVarname := e.recursive && eval != nil
	if recordVarname {
		e.lookups = append(e.lookups, v)
	}

	// In practice, variables defined on rules never use another rule variable.
	// For performance, only start checking for cycles after the first lookup.
	e.recursive = true
	result := edge.Env.LookupWithFallback(v, eval, e)
	if recordVarname {
		e.lookups = e.lookups[:len(e.lookups)-1]
	}
	return result
}

func makePathList(paths []*Node, sep byte, escape escapeKind) string {
	var result string
	for _, n := range paths {
		if len(result) != 0 {
			result += string(sep)
		}
		if escape == shellEscape {
			result += shellQuote(n.PathDecanonicalized())
		} else {
			result += n.PathDecanonicalized()
		}
	}
	return result
}

// PathDecanonicalized returns the path with the original slash direction
// restored from SlashBits.
func (n *Node) PathDecanonicalized() string {
	return pathDecanonicalized(n.Path, n.SlashBits)
}

// GetBinding evaluates a binding on this edge, shell-quoting $in and $out.
func (e *Edge) GetBinding(key string) string {
	env := edgeEnv{edge: e, escapeInOut: shellEscape}
	return env.LookupVariable(key)
}

// GetBindingBool returns true if the binding is set to a non-empty value.
func (e *Edge) GetBindingBool(key string) bool {
	return e.GetBinding(key) != ""
}

// EvaluateCommand returns the command to run for this edge.
func (e *Edge) EvaluateCommand() string {
	return e.GetBinding("command")
}

// GetUnescapedDyndep returns the dyndep path, unescaped for consumption as a
// real path.
func (e *Edge) GetUnescapedDyndep() string {
	env := edgeEnv{edge: e, escapeInOut: doNotEscape}
	return env.LookupVariable("dyndep")
}

// GetUnescapedRspfile returns the rspfile path, unescaped for consumption as
// a real path.
func (e *Edge) GetUnescapedRspfile() string {
	env := edgeEnv{edge: e, escapeInOut: doNotEscape}
	return env.LookupVariable("rspfile")
}

// maybePhonycycleDiagnostic returns true if this edge is the shape of phony
// statement that old CMake versions emit with the output as its own input.
func (e *Edge) maybePhonycycleDiagnostic() bool {
	// CMake 2.8.12.x and 3.0.x produced self-referencing phony rules of the
	// form "build a: phony ... a ...". The restriction to a single output and
	// no implicit dependencies is done to avoid changing the semantics of
	// other statements.
	return e.Rule == PhonyRule && len(e.Outputs) == 1 &&
		e.ImplicitOuts == 0 && e.ImplicitDeps == 0
}
