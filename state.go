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
	"errors"
	"fmt"
)

// Pool is a named set of delayed edges.
//
// Pools are scoped to a State. Edges within a State share Pools; the
// downstream scheduler uses the depth to bound how many of a pool's edges run
// concurrently. A depth of 0 is infinite.
type Pool struct {
	Name  string
	Depth int
}

func NewPool(name string, depth int) *Pool {
	return &Pool{Name: name, Depth: depth}
}

// PhonyRule is the predefined rule with no command; edges using it group
// targets. It is a singleton installed in every root scope and owned by
// none.
var PhonyRule = NewRule("phony")

var (
	defaultPool = NewPool("", 0)
	consolePool = NewPool("console", 1)
)

// State is the global build graph state for a single run.
type State struct {
	// Paths maps canonicalized path -> Node.
	Paths map[string]*Node

	// Pools contains all the pools used in the graph.
	Pools map[string]*Pool

	// Edges contains all the edges of the graph, in manifest order.
	Edges []*Edge

	// Bindings is the root variable and rule scope.
	Bindings *BindingEnv

	// Defaults are the nodes named by default statements.
	Defaults []*Node
}

func NewState() State {
	s := State{
		Paths:    map[string]*Node{},
		Pools:    map[string]*Pool{},
		Bindings: NewBindingEnv(nil),
	}
	s.Bindings.Rules[PhonyRule.Name] = PhonyRule
	s.Pools[defaultPool.Name] = defaultPool
	s.Pools[consolePool.Name] = consolePool
	return s
}

// addEdge creates a new edge using rule, attached to the root scope and the
// default pool.
func (s *State) addEdge(rule *Rule) *Edge {
	edge := &Edge{
		Rule: rule,
		Pool: defaultPool,
		Env:  s.Bindings,
		ID:   int32(len(s.Edges)),
	}
	s.Edges = append(s.Edges, edge)
	return edge
}

// GetNode returns the node for path, creating it if needed.
func (s *State) GetNode(path string, slashBits uint64) *Node {
	if node := s.Paths[path]; node != nil {
		return node
	}
	node := &Node{Path: path, SlashBits: slashBits}
	s.Paths[path] = node
	return node
}

// LookupNode returns the node for path or nil.
func (s *State) LookupNode(path string) *Node {
	return s.Paths[path]
}

// SpellcheckNode returns the node whose path is nearest to path, or nil if
// nothing is close.
func (s *State) SpellcheckNode(path string) *Node {
	const allowReplacements = true
	const maxValidEditDistance = 3

	minDistance := maxValidEditDistance + 1
	var result *Node
	for p, node := range s.Paths {
		distance := editDistance(p, path, allowReplacements, maxValidEditDistance)
		if distance < minDistance && node != nil {
			minDistance = distance
			result = node
		}
	}
	return result
}

func (s *State) addIn(edge *Edge, path string, slashBits uint64) {
	node := s.GetNode(path, slashBits)
	edge.Inputs = append(edge.Inputs, node)
	node.OutEdges = append(node.OutEdges, edge)
}

// addOut attaches path as an output of edge. Returns false if the node is
// already produced by another edge.
func (s *State) addOut(edge *Edge, path string, slashBits uint64) bool {
	node := s.GetNode(path, slashBits)
	if node.InEdge != nil {
		return false
	}
	edge.Outputs = append(edge.Outputs, node)
	node.InEdge = edge
	return true
}

func (s *State) addValidation(edge *Edge, path string, slashBits uint64) {
	node := s.GetNode(path, slashBits)
	edge.Validations = append(edge.Validations, node)
	node.ValidationOutEdges = append(node.ValidationOutEdges, edge)
}

func (s *State) addDefault(path string) error {
	node := s.LookupNode(path)
	if node == nil {
		return fmt.Errorf("unknown target '%s'", path)
	}
	s.Defaults = append(s.Defaults, node)
	return nil
}

// RootNodes returns the root node(s) of the graph (nodes with no output
// edges).
func (s *State) RootNodes() ([]*Node, error) {
	var rootNodes []*Node
	// Search for nodes with no output.
	for _, e := range s.Edges {
		for _, out := range e.Outputs {
			if len(out.OutEdges) == 0 {
				rootNodes = append(rootNodes, out)
			}
		}
	}
	if len(s.Edges) != 0 && len(rootNodes) == 0 {
		return nil, errors.New("could not determine root nodes of build graph")
	}
	return rootNodes, nil
}

// DefaultNodes returns the default targets, falling back to the graph roots
// when the manifest declares none.
func (s *State) DefaultNodes() ([]*Node, error) {
	if len(s.Defaults) != 0 {
		return s.Defaults, nil
	}
	return s.RootNodes()
}
