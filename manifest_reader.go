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
	"fmt"
	"io"
)

// manifestReader is a forward cursor plus offset-based accessors over a
// record stream produced by manifestWriter. Strings and vectors are
// dereferenced lazily by offset and returned as views into the buffer, so
// nothing derived from the reader may outlive it.
type manifestReader struct {
	buf []byte
	p   int
}

func newManifestReader(buf []byte) *manifestReader {
	return &manifestReader{buf: buf}
}

func (r *manifestReader) peekType() nodeType {
	if r.p >= len(r.buf) {
		return nodeUnknown
	}
	return nodeType(r.buf[r.p])
}

// isCurrentVersion reports whether the stream starts with a START_PARSE
// record matching this binary's schema. A checksum of zero is accepted for
// hand-built test streams.
func (r *manifestReader) isCurrentVersion() bool {
	if len(r.buf)-r.p < startParseNodeSize {
		return false
	}
	if nodeType(r.buf[r.p]) != nodeStartParse {
		return false
	}
	if binary.LittleEndian.Uint16(r.buf[r.p+1:]) != startParseNodeSize {
		return false
	}
	version := binary.LittleEndian.Uint16(r.buf[r.p+3:])
	checksum := binary.LittleEndian.Uint16(r.buf[r.p+5:])
	return version == manifestSchemaVersion &&
		(checksum == 0 || checksum == manifestSchemaChecksum)
}

func (r *manifestReader) eatStartParse() error {
	if !r.isCurrentVersion() {
		return fmt.Errorf("manifest cache schema mismatch")
	}
	r.p += startParseNodeSize
	return nil
}

func (r *manifestReader) eatEndParse() error {
	if r.peekType() != nodeEndParse {
		return fmt.Errorf("manifest cache missing end-parse record")
	}
	r.p++
	return nil
}

// nextRecordType advances past pending STRING and VECTOR declarations, which
// are only ever resolved by offset, and returns the type of the next node
// record without consuming it.
func (r *manifestReader) nextRecordType() nodeType {
	for {
		t := r.peekType()
		switch t {
		case nodeString:
			n := int(binary.LittleEndian.Uint16(r.buf[r.p+1:]))
			r.p += 1 + 2 + n
		case nodeVector:
			n := int(binary.LittleEndian.Uint16(r.buf[r.p+1:]))
			r.p += 1 + 2 + n
		default:
			return t
		}
	}
}

// eatRecord validates the {tag, size} header of the node record under the
// cursor and returns the offset of its fields.
func (r *manifestReader) eatRecord(t nodeType, size int) (int, error) {
	if len(r.buf)-r.p < size {
		return 0, fmt.Errorf("manifest cache truncated")
	}
	if nodeType(r.buf[r.p]) != t {
		return 0, fmt.Errorf("manifest cache corrupted: want record '%c', got '%c'", t, r.buf[r.p])
	}
	if int(binary.LittleEndian.Uint16(r.buf[r.p+1:])) != size {
		return 0, fmt.Errorf("manifest cache corrupted: bad '%c' record size", t)
	}
	p := r.p + nodeHeaderSize
	r.p += size
	return p, nil
}

func (r *manifestReader) u16(p int) uint16 {
	return binary.LittleEndian.Uint16(r.buf[p:])
}

func (r *manifestReader) u32(p int) uint32 {
	return binary.LittleEndian.Uint32(r.buf[p:])
}

func (r *manifestReader) u64(p int) uint64 {
	return binary.LittleEndian.Uint64(r.buf[p:])
}

type ruleRecord struct {
	name         stringRef
	bindings     vecRef
	rulePosition uint64
}

func (r *manifestReader) readRule() (ruleRecord, error) {
	p, err := r.eatRecord(nodeRule, ruleNodeSize)
	if err != nil {
		return ruleRecord{}, err
	}
	return ruleRecord{
		name:         stringRef(r.u32(p)),
		bindings:     vecRef(r.u32(p + 4)),
		rulePosition: r.u64(p + 8),
	}, nil
}

type buildRecord struct {
	ruleName         stringRef
	outs             vecRef
	implicitOutCount int
	ins              vecRef
	implicitInCount  int
	orderOnlyInCount int
	validations      vecRef
	bindings         vecRef
	rulePosition     uint64
	finalPosition    uint64
}

func (r *manifestReader) readBuild() (buildRecord, error) {
	p, err := r.eatRecord(nodeBuild, buildNodeSize)
	if err != nil {
		return buildRecord{}, err
	}
	return buildRecord{
		ruleName:         stringRef(r.u32(p)),
		outs:             vecRef(r.u32(p + 4)),
		implicitOutCount: int(r.u16(p + 8)),
		ins:              vecRef(r.u32(p + 10)),
		implicitInCount:  int(r.u16(p + 14)),
		orderOnlyInCount: int(r.u16(p + 16)),
		validations:      vecRef(r.u32(p + 18)),
		bindings:         vecRef(r.u32(p + 22)),
		rulePosition:     r.u64(p + 26),
		finalPosition:    r.u64(p + 34),
	}, nil
}

type includeRecord struct {
	newScope      bool
	path          vecRef
	finalPosition uint64
}

func (r *manifestReader) readInclude() (includeRecord, error) {
	p, err := r.eatRecord(nodeInclude, includeNodeSize)
	if err != nil {
		return includeRecord{}, err
	}
	return includeRecord{
		newScope:      r.buf[p] != 0,
		path:          vecRef(r.u32(p + 1)),
		finalPosition: r.u64(p + 5),
	}, nil
}

type bindingRecord struct {
	name  stringRef
	value vecRef
}

func (r *manifestReader) readBinding() (bindingRecord, error) {
	p, err := r.eatRecord(nodeBinding, bindingNodeSize)
	if err != nil {
		return bindingRecord{}, err
	}
	return bindingRecord{
		name:  stringRef(r.u32(p)),
		value: vecRef(r.u32(p + 4)),
	}, nil
}

type defaultRecord struct {
	defaults         vecRef
	defaultPositions vecRef
	finalPosition    uint64
}

func (r *manifestReader) readDefault() (defaultRecord, error) {
	p, err := r.eatRecord(nodeDefault, defaultNodeSize)
	if err != nil {
		return defaultRecord{}, err
	}
	return defaultRecord{
		defaults:         vecRef(r.u32(p)),
		defaultPositions: vecRef(r.u32(p + 4)),
		finalPosition:    r.u64(p + 8),
	}, nil
}

type poolRecord struct {
	name          stringRef
	depth         vecRef
	poolPosition  uint64
	depthPosition uint64
	finalPosition uint64
}

func (r *manifestReader) readPool() (poolRecord, error) {
	p, err := r.eatRecord(nodePool, poolNodeSize)
	if err != nil {
		return poolRecord{}, err
	}
	return poolRecord{
		name:          stringRef(r.u32(p)),
		depth:         vecRef(r.u32(p + 4)),
		poolPosition:  r.u64(p + 8),
		depthPosition: r.u64(p + 16),
		finalPosition: r.u64(p + 24),
	}, nil
}

// str dereferences a string ref into a view of the buffer, excluding the
// trailing NUL.
func (r *manifestReader) str(ref stringRef) string {
	n := int(r.u16(int(ref)))
	start := int(ref) + 2
	return unsafeString(r.buf[start : start+n-1])
}

// vecCount returns the element count of a vector ref.
func (r *manifestReader) vecCount(ref vecRef) int {
	return int(r.u16(int(ref)))
}

// evalString materializes an eval string from its (string ref, kind) pairs.
// The piece values are views of the buffer.
func (r *manifestReader) evalString(ref vecRef) EvalString {
	count := r.vecCount(ref)
	data := int(ref) + 2
	eval := EvalString{Parsed: make([]EvalStringToken, 0, count)}
	for i := 0; i < count; i++ {
		p := data + i*evalPairSize
		s := r.str(stringRef(r.u32(p)))
		if r.buf[p+4] == evalSpecial {
			eval.AddSpecial(s)
		} else {
			eval.AddText(s)
		}
	}
	return eval
}

// evalStrings materializes a vector of eval strings.
func (r *manifestReader) evalStrings(ref vecRef) []EvalString {
	count := r.vecCount(ref)
	data := int(ref) + 2
	evals := make([]EvalString, count)
	for i := 0; i < count; i++ {
		evals[i] = r.evalString(vecRef(r.u32(data + i*refSize)))
	}
	return evals
}

// positions materializes a vector of source byte offsets.
func (r *manifestReader) positions(ref vecRef) []uint64 {
	count := r.vecCount(ref)
	data := int(ref) + 2
	ps := make([]uint64, count)
	for i := 0; i < count; i++ {
		ps[i] = r.u64(data + i*8)
	}
	return ps
}

// bindingAt dereferences element i of a binding vector.
func (r *manifestReader) bindingAt(ref vecRef, i int) (string, EvalString) {
	data := int(ref) + 2
	p := data + i*bindingPairSize
	return r.str(stringRef(r.u32(p))), r.evalString(vecRef(r.u32(p + 4)))
}

// DumpCache writes a human-readable listing of a manifest cache stream, one
// line per node record. Used by the CLI's inspection tool.
func DumpCache(w io.Writer, data []byte) error {
	r := newManifestReader(data)
	if err := r.eatStartParse(); err != nil {
		return err
	}
	fmt.Fprintf(w, "start_parse version=%d checksum=%d\n", manifestSchemaVersion, manifestSchemaChecksum)
	for {
		switch t := r.nextRecordType(); t {
		case nodeRule:
			rec, err := r.readRule()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "rule %s bindings=%d\n", r.str(rec.name), r.vecCount(rec.bindings))
		case nodeBuild:
			rec, err := r.readBuild()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "build %s outs=%d(+%d) ins=%d(+%d,+%d) validations=%d bindings=%d\n",
				r.str(rec.ruleName),
				r.vecCount(rec.outs)-rec.implicitOutCount, rec.implicitOutCount,
				r.vecCount(rec.ins)-rec.implicitInCount-rec.orderOnlyInCount,
				rec.implicitInCount, rec.orderOnlyInCount,
				r.vecCount(rec.validations), r.vecCount(rec.bindings))
		case nodeInclude:
			rec, err := r.readInclude()
			if err != nil {
				return err
			}
			kind := "include"
			if rec.newScope {
				kind = "subninja"
			}
			eval := r.evalString(rec.path)
			fmt.Fprintf(w, "%s %s\n", kind, eval.Unparse())
		case nodeBinding:
			rec, err := r.readBinding()
			if err != nil {
				return err
			}
			eval := r.evalString(rec.value)
			fmt.Fprintf(w, "binding %s = %s\n", r.str(rec.name), eval.Unparse())
		case nodeDefault:
			rec, err := r.readDefault()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "default targets=%d\n", r.vecCount(rec.defaults))
		case nodePool:
			rec, err := r.readPool()
			if err != nil {
				return err
			}
			eval := r.evalString(rec.depth)
			fmt.Fprintf(w, "pool %s depth=%s\n", r.str(rec.name), eval.Unparse())
		case nodeEndParse:
			return r.eatEndParse()
		default:
			return fmt.Errorf("manifest cache corrupted: unexpected record '%c'", t)
		}
	}
}
