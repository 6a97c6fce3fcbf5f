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
)

// The manifest cache is a flat little-endian stream of tag-prefixed records.
// Fixed-layout node records follow their 1-byte tag with a 2-byte size;
// variable data (strings, vectors) is stored out of line in STRING and
// VECTOR records and referenced by 32-bit file offsets. Referenced records
// always precede the referring record: the stream is strictly append-only.
type nodeType byte

const (
	nodeUnknown    nodeType = 0
	nodeString     nodeType = 's'
	nodeStartParse nodeType = '+'
	nodeEndParse   nodeType = '-'
	nodeRule       nodeType = 'r'
	nodeBuild      nodeType = 'b'
	nodeInclude    nodeType = 'i'
	nodeBinding    nodeType = '='
	nodeDefault    nodeType = 'd'
	nodePool       nodeType = 'p'
	nodeVector     nodeType = 'v'
)

// Eval-string piece kinds as stored in the stream.
const (
	evalRaw     byte = 'R'
	evalSpecial byte = 'S'
)

// stringRef and vecRef are absolute file offsets of a record's payload: for
// a string the 2-byte length, for a vector the 2-byte element count.
type stringRef uint32

type vecRef uint32

// Fixed record layouts, sizes in bytes including the {tag, size} header.
const (
	refSize        = 4
	nodeHeaderSize = 1 + 2

	startParseNodeSize = nodeHeaderSize + 2 + 2
	ruleNodeSize       = nodeHeaderSize + refSize + refSize + 8
	buildNodeSize      = nodeHeaderSize + refSize + refSize + 2 + refSize + 2 + 2 + refSize + refSize + 8 + 8
	includeNodeSize    = nodeHeaderSize + 1 + refSize + 8
	bindingNodeSize    = nodeHeaderSize + refSize + refSize
	defaultNodeSize    = nodeHeaderSize + refSize + refSize + 8
	poolNodeSize       = nodeHeaderSize + refSize + refSize + 8 + 8 + 8

	evalPairSize    = refSize + 1
	bindingPairSize = refSize + refSize
)

const manifestSchemaVersion = 1

// manifestSchemaChecksum digests the fixed record layouts; any change to
// them silently invalidates every existing cache file.
const manifestSchemaChecksum = poolNodeSize +
	defaultNodeSize +
	bindingNodeSize +
	includeNodeSize +
	buildNodeSize +
	ruleNodeSize

// bindingPair is a (name, unevaluated value) pair headed into the stream.
type bindingPair struct {
	Name  string
	Value EvalString
}

// manifestWriter is the append-only emitter of the record stream. Strings
// and vectors are interned by payload: a value seen before yields the offset
// of its first occurrence instead of a second record, so output for a given
// input is deterministic byte for byte.
type manifestWriter struct {
	buf      []byte
	interned map[string]uint32
	scratch  []byte
}

func newManifestWriter() *manifestWriter {
	return &manifestWriter{interned: map[string]uint32{}}
}

// bytes returns the emitted stream. Only complete after endParse.
func (w *manifestWriter) bytes() []byte {
	return w.buf
}

func (w *manifestWriter) putU16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *manifestWriter) putU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *manifestWriter) putU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *manifestWriter) startParse() {
	w.buf = append(w.buf, byte(nodeStartParse))
	w.putU16(startParseNodeSize)
	w.putU16(manifestSchemaVersion)
	w.putU16(manifestSchemaChecksum)
}

// endParse terminates the stream. The terminator is a bare tag with no size.
func (w *manifestWriter) endParse() {
	w.buf = append(w.buf, byte(nodeEndParse))
}

// str interns s, emitting a STRING record on first occurrence.
func (w *manifestWriter) str(s string) stringRef {
	key := "s\x00" + s
	if off, ok := w.interned[key]; ok {
		return stringRef(off)
	}
	w.buf = append(w.buf, byte(nodeString))
	off := uint32(len(w.buf))
	w.interned[key] = off
	w.putU16(uint16(len(s) + 1))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return stringRef(off)
}

// vector interns a packed vector payload of count elements, emitting a
// VECTOR record on first occurrence.
//
// Layout of a vector record:
//
//	tag VECTOR
//	u16 -- total size of the payload in bytes
//	u16 -- count of elements
//	element0 .. elementN
//	NUL
func (w *manifestWriter) vector(elems []byte, count int) vecRef {
	payload := make([]byte, 0, 2+len(elems)+1)
	payload = binary.LittleEndian.AppendUint16(payload, uint16(count))
	payload = append(payload, elems...)
	payload = append(payload, 0)

	key := "v\x00" + string(payload)
	if off, ok := w.interned[key]; ok {
		return vecRef(off)
	}
	w.buf = append(w.buf, byte(nodeVector))
	w.putU16(uint16(len(payload)))
	off := uint32(len(w.buf))
	w.interned[key] = off
	w.buf = append(w.buf, payload...)
	return vecRef(off)
}

// evalString interns an eval string as a vector of (string ref, kind) pairs.
func (w *manifestWriter) evalString(e *EvalString) vecRef {
	w.scratch = w.scratch[:0]
	for _, t := range e.Parsed {
		// Interning the piece may append a STRING record; it lands before the
		// vector, keeping references pointing backwards.
		ref := w.str(t.Value)
		w.scratch = binary.LittleEndian.AppendUint32(w.scratch, uint32(ref))
		if t.IsSpecial {
			w.scratch = append(w.scratch, evalSpecial)
		} else {
			w.scratch = append(w.scratch, evalRaw)
		}
	}
	return w.vector(w.scratch, len(e.Parsed))
}

// evalStringVector interns a list of eval strings as a vector of vector
// refs.
func (w *manifestWriter) evalStringVector(evals []EvalString) vecRef {
	refs := make([]vecRef, len(evals))
	for i := range evals {
		refs[i] = w.evalString(&evals[i])
	}
	w.scratch = w.scratch[:0]
	for _, r := range refs {
		w.scratch = binary.LittleEndian.AppendUint32(w.scratch, uint32(r))
	}
	return w.vector(w.scratch, len(refs))
}

// positionVector interns a vector of source byte offsets.
func (w *manifestWriter) positionVector(positions []uint64) vecRef {
	w.scratch = w.scratch[:0]
	for _, p := range positions {
		w.scratch = binary.LittleEndian.AppendUint64(w.scratch, p)
	}
	return w.vector(w.scratch, len(positions))
}

// bindingVector interns a vector of (name ref, value ref) pairs.
func (w *manifestWriter) bindingVector(bindings []bindingPair) vecRef {
	type packed struct {
		name  stringRef
		value vecRef
	}
	refs := make([]packed, len(bindings))
	for i := range bindings {
		refs[i] = packed{w.str(bindings[i].Name), w.evalString(&bindings[i].Value)}
	}
	w.scratch = w.scratch[:0]
	for _, r := range refs {
		w.scratch = binary.LittleEndian.AppendUint32(w.scratch, uint32(r.name))
		w.scratch = binary.LittleEndian.AppendUint32(w.scratch, uint32(r.value))
	}
	return w.vector(w.scratch, len(refs))
}

func (w *manifestWriter) writeRule(name string, bindings []bindingPair, rulePosition uint64) {
	nameRef := w.str(name)
	bindingsRef := w.bindingVector(bindings)
	w.buf = append(w.buf, byte(nodeRule))
	w.putU16(ruleNodeSize)
	w.putU32(uint32(nameRef))
	w.putU32(uint32(bindingsRef))
	w.putU64(rulePosition)
}

func (w *manifestWriter) writeBuild(ruleName string, outs vecRef, implicitOutCount int, ins vecRef, implicitInCount, orderOnlyInCount int, validations, bindings vecRef, rulePosition, finalPosition uint64) {
	nameRef := w.str(ruleName)
	w.buf = append(w.buf, byte(nodeBuild))
	w.putU16(buildNodeSize)
	w.putU32(uint32(nameRef))
	w.putU32(uint32(outs))
	w.putU16(uint16(implicitOutCount))
	w.putU32(uint32(ins))
	w.putU16(uint16(implicitInCount))
	w.putU16(uint16(orderOnlyInCount))
	w.putU32(uint32(validations))
	w.putU32(uint32(bindings))
	w.putU64(rulePosition)
	w.putU64(finalPosition)
}

func (w *manifestWriter) writeInclude(newScope bool, path vecRef, finalPosition uint64) {
	w.buf = append(w.buf, byte(nodeInclude))
	w.putU16(includeNodeSize)
	if newScope {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	w.putU32(uint32(path))
	w.putU64(finalPosition)
}

func (w *manifestWriter) writeBinding(name string, value *EvalString) {
	nameRef := w.str(name)
	valueRef := w.evalString(value)
	w.buf = append(w.buf, byte(nodeBinding))
	w.putU16(bindingNodeSize)
	w.putU32(uint32(nameRef))
	w.putU32(uint32(valueRef))
}

func (w *manifestWriter) writeDefault(defaults, defaultPositions vecRef, finalPosition uint64) {
	w.buf = append(w.buf, byte(nodeDefault))
	w.putU16(defaultNodeSize)
	w.putU32(uint32(defaults))
	w.putU32(uint32(defaultPositions))
	w.putU64(finalPosition)
}

func (w *manifestWriter) writePool(name string, depth *EvalString, poolPosition, depthPosition, finalPosition uint64) {
	nameRef := w.str(name)
	depthRef := w.evalString(depth)
	w.buf = append(w.buf, byte(nodePool))
	w.putU16(poolNodeSize)
	w.putU32(uint32(nameRef))
	w.putU32(uint32(depthRef))
	w.putU64(poolPosition)
	w.putU64(depthPosition)
	w.putU64(finalPosition)
}
