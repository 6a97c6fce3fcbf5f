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
)

// manifestToBinParser compiles .ninja text into the binary record stream.
//
// It performs the whole of the syntactic validation but never evaluates a
// variable: every value crosses into the stream as an unevaluated eval
// string, and every statement carries the source byte offsets the
// interpreter needs to report its own errors against the text.
type manifestToBinParser struct {
	lexer lexer
	out   *manifestWriter
}

// CompileManifest compiles manifest text to the binary cache format. The
// input must be NUL terminated, as returned by FileReader.ReadFile.
func CompileManifest(filename string, input []byte) ([]byte, error) {
	m := manifestToBinParser{out: newManifestWriter()}
	if err := m.parse(filename, input); err != nil {
		return nil, err
	}
	return m.out.bytes(), nil
}

// parse lexes a file, given its contents as a string, emitting one node
// record per top-level statement.
func (m *manifestToBinParser) parse(filename string, input []byte) error {
	defer metricRecord("manifest compile")()

	if err := m.lexer.Start(filename, input); err != nil {
		return err
	}
	m.out.startParse()

	for {
		switch token := m.lexer.ReadToken(); token {
		case POOL:
			if err := m.parsePool(); err != nil {
				return err
			}
		case BUILD:
			if err := m.parseEdge(); err != nil {
				return err
			}
		case RULE:
			if err := m.parseRule(); err != nil {
				return err
			}
		case DEFAULT:
			if err := m.parseDefault(); err != nil {
				return err
			}
		case IDENT:
			m.lexer.UnreadToken()
			name, letValue, err := m.parseLet()
			if err != nil {
				return err
			}
			m.out.writeBinding(name, &letValue)
		case INCLUDE:
			if err := m.parseFileInclude(false); err != nil {
				return err
			}
		case SUBNINJA:
			if err := m.parseFileInclude(true); err != nil {
				return err
			}
		case ERROR:
			return m.lexer.Error(m.lexer.DescribeLastError())
		case TEOF:
			m.out.endParse()
			return nil
		case NEWLINE:
		default:
			return m.lexer.Error("unexpected " + token.String())
		}
	}
}

// parsePool parses a "pool" statement.
func (m *manifestToBinParser) parsePool() error {
	name := m.lexer.readIdent()
	if name == "" {
		return m.lexer.Error("expected pool name")
	}
	poolPos := uint64(m.lexer.lastToken)

	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}

	var depth EvalString
	var depthPos uint64
	haveDepth := false
	for m.lexer.PeekToken(INDENT) {
		pos := uint64(m.lexer.Offset())
		key, value, err := m.parseLet()
		if err != nil {
			return err
		}
		if key != "depth" {
			return m.lexer.Error(fmt.Sprintf("unexpected variable '%s'", key))
		}
		depth = value
		depthPos = pos
		haveDepth = true
	}

	if !haveDepth {
		return m.lexer.Error("expected 'depth =' line")
	}

	m.out.writePool(name, &depth, poolPos, depthPos, uint64(m.lexer.Offset()))
	return nil
}

// parseRule parses a "rule" statement.
func (m *manifestToBinParser) parseRule() error {
	name := m.lexer.readIdent()
	if name == "" {
		return m.lexer.Error("expected rule name")
	}
	rulePos := uint64(m.lexer.lastToken)

	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}

	var bindings []bindingPair
	for m.lexer.PeekToken(INDENT) {
		key, value, err := m.parseLet()
		if err != nil {
			return err
		}
		if !IsReservedBinding(key) {
			// Die on other keyvals for now; revisit if we want to add a
			// scope here.
			return m.lexer.Error(fmt.Sprintf("unexpected variable '%s'", key))
		}
		bindings = append(bindings, bindingPair{key, value})
	}

	var rspfile, rspfileContent, command *EvalString
	for i := range bindings {
		switch bindings[i].Name {
		case "rspfile":
			rspfile = &bindings[i].Value
		case "rspfile_content":
			rspfileContent = &bindings[i].Value
		case "command":
			command = &bindings[i].Value
		}
	}
	if (rspfile == nil) != (rspfileContent == nil) ||
		(rspfile != nil && (len(rspfile.Parsed) == 0) != (len(rspfileContent.Parsed) == 0)) {
		return m.lexer.Error("rspfile and rspfile_content need to be both specified")
	}
	if command == nil || len(command.Parsed) == 0 {
		return m.lexer.Error("expected 'command =' line")
	}

	m.out.writeRule(name, bindings, rulePos)
	return nil
}

// parseDefault parses a "default" statement.
func (m *manifestToBinParser) parseDefault() error {
	pos := uint64(m.lexer.Offset())
	eval, err := m.lexer.readEvalString(true)
	if err != nil {
		return err
	}
	if len(eval.Parsed) == 0 {
		return m.lexer.Error("expected target name")
	}

	var defaults []EvalString
	var positions []uint64
	for {
		defaults = append(defaults, eval)
		positions = append(positions, pos)

		pos = uint64(m.lexer.Offset())
		eval, err = m.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(eval.Parsed) == 0 {
			break
		}
	}

	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}

	defaultsRef := m.out.evalStringVector(defaults)
	positionsRef := m.out.positionVector(positions)
	m.out.writeDefault(defaultsRef, positionsRef, uint64(m.lexer.Offset()))
	return nil
}

// parseEdge parses a "build" statement.
func (m *manifestToBinParser) parseEdge() error {
	var outs []EvalString
	for {
		ev, err := m.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(ev.Parsed) == 0 {
			break
		}
		outs = append(outs, ev)
	}

	// Add all implicit outs, counting how many as we go.
	implicitOuts := 0
	if m.lexer.PeekToken(PIPE) {
		for {
			ev, err := m.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			outs = append(outs, ev)
			implicitOuts++
		}
	}

	if len(outs) == 0 {
		return m.lexer.Error("expected path")
	}

	if err := m.expectToken(COLON); err != nil {
		return err
	}

	ruleName := m.lexer.readIdent()
	if ruleName == "" {
		return m.lexer.Error("expected build command name")
	}
	rulePos := uint64(m.lexer.lastToken)

	var ins []EvalString
	for {
		ev, err := m.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(ev.Parsed) == 0 {
			break
		}
		ins = append(ins, ev)
	}

	// Add all implicit deps, counting how many as we go.
	implicit := 0
	if m.lexer.PeekToken(PIPE) {
		for {
			ev, err := m.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			ins = append(ins, ev)
			implicit++
		}
	}

	// Add all order-only deps, counting how many as we go.
	orderOnly := 0
	if m.lexer.PeekToken(PIPE2) {
		for {
			ev, err := m.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			ins = append(ins, ev)
			orderOnly++
		}
	}

	// Add all validations.
	var validations []EvalString
	if m.lexer.PeekToken(PIPEAT) {
		for {
			ev, err := m.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			validations = append(validations, ev)
		}
	}

	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}

	var bindings []bindingPair
	for m.lexer.PeekToken(INDENT) {
		key, val, err := m.parseLet()
		if err != nil {
			return err
		}
		bindings = append(bindings, bindingPair{key, val})
	}

	outsRef := m.out.evalStringVector(outs)
	insRef := m.out.evalStringVector(ins)
	validationsRef := m.out.evalStringVector(validations)
	bindingsRef := m.out.bindingVector(bindings)
	m.out.writeBuild(ruleName, outsRef, implicitOuts, insRef, implicit,
		orderOnly, validationsRef, bindingsRef, rulePos, uint64(m.lexer.Offset()))
	return nil
}

// parseFileInclude parses either an "include" or "subninja" line.
func (m *manifestToBinParser) parseFileInclude(newScope bool) error {
	eval, err := m.lexer.readEvalString(true)
	if err != nil {
		return err
	}
	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}
	pathRef := m.out.evalString(&eval)
	m.out.writeInclude(newScope, pathRef, uint64(m.lexer.Offset()))
	return nil
}

func (m *manifestToBinParser) parseLet() (string, EvalString, error) {
	eval := EvalString{}
	key := m.lexer.readIdent()
	if key == "" {
		return key, eval, m.lexer.Error("expected variable name")
	}
	var err error
	if err = m.expectToken(EQUALS); err == nil {
		eval, err = m.lexer.readEvalString(false)
	}
	return key, eval, err
}

// expectToken produces an error if the next token is not expected.
//
// The error says "expected foo, got bar".
func (m *manifestToBinParser) expectToken(expected Token) error {
	if token := m.lexer.ReadToken(); token != expected {
		msg := "expected " + expected.String() + ", got " + token.String() + expected.errorHint()
		return m.lexer.Error(msg)
	}
	return nil
}
