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

import "testing"

func TestEvalString_AddTextCoalesces(t *testing.T) {
	e := EvalString{}
	e.AddText("foo")
	e.AddText(" bar")
	e.AddSpecial("x")
	e.AddText("baz")
	if len(e.Parsed) != 3 {
		t.Fatalf("want 3 pieces, got %d", len(e.Parsed))
	}
	if got := e.Serialize(); got != "[foo bar][$x][baz]" {
		t.Fatal(got)
	}
}

func TestEvalString_Evaluate(t *testing.T) {
	env := NewBindingEnv(nil)
	env.Bindings["x"] = "X"

	e := EvalString{}
	e.AddText("a ")
	e.AddSpecial("x")
	e.AddSpecial("missing")
	if got := e.Evaluate(env); got != "a X" {
		t.Fatal(got)
	}
	empty := EvalString{}
	if got := empty.Evaluate(env); got != "" {
		t.Fatal(got)
	}
}

func TestEvalString_Unparse(t *testing.T) {
	e := EvalString{}
	e.AddText("gcc -c ")
	e.AddSpecial("in")
	e.AddText(" -o ")
	e.AddSpecial("out")
	if got := e.Unparse(); got != "gcc -c ${in} -o ${out}" {
		t.Fatal(got)
	}
}

// Evaluating an eval string must be equivalent to evaluating the parse of
// its unparsed form.
func TestEvalString_UnparseRoundTrip(t *testing.T) {
	env := NewBindingEnv(nil)
	env.Bindings["in"] = "a.c"
	env.Bindings["out"] = "a.o"
	env.Bindings["weird.var-name"] = "w"

	e := EvalString{}
	e.AddText("cc ")
	e.AddSpecial("in")
	e.AddText(" -o ")
	e.AddSpecial("out")
	e.AddText(" -O2 ")
	e.AddSpecial("weird.var-name")

	l := &lexer{}
	if err := l.Start("input", []byte(e.Unparse()+"\n\x00")); err != nil {
		t.Fatal(err)
	}
	reparsed, err := l.readEvalString(false)
	if err != nil {
		t.Fatal(err)
	}
	if e.Evaluate(env) != reparsed.Evaluate(env) {
		t.Fatalf("%q != %q", e.Evaluate(env), reparsed.Evaluate(env))
	}
}

func TestBindingEnv_Lookup(t *testing.T) {
	parent := NewBindingEnv(nil)
	parent.Bindings["a"] = "outer"
	parent.Bindings["b"] = "b"
	child := NewBindingEnv(parent)
	child.Bindings["a"] = "inner"

	if got := child.LookupVariable("a"); got != "inner" {
		t.Fatal(got)
	}
	if got := child.LookupVariable("b"); got != "b" {
		t.Fatal(got)
	}
	if got := child.LookupVariable("missing"); got != "" {
		t.Fatal(got)
	}
}

func TestBindingEnv_RuleScopes(t *testing.T) {
	parent := NewBindingEnv(nil)
	child := NewBindingEnv(parent)
	rule := NewRule("cc")
	parent.Rules[rule.Name] = rule

	if child.LookupRule("cc") != rule {
		t.Fatal("rule must be visible from child scope")
	}
	if child.LookupRuleCurrentScope("cc") != nil {
		t.Fatal("current-scope lookup must not walk parents")
	}
	if parent.LookupRuleCurrentScope("cc") != rule {
		t.Fatal("rule missing from owning scope")
	}
}

// A lookup of X on an edge whose rule defines X, whose enclosing scope
// defines X and whose edge-local scope defines X must see the edge-local
// value; without the edge-local value the rule binding expands in the edge
// scope; without both the enclosing scope wins.
func TestBindingEnv_LookupWithFallback(t *testing.T) {
	enclosing := NewBindingEnv(nil)
	enclosing.Bindings["x"] = "Y"

	ruleBinding := &EvalString{}
	ruleBinding.AddText("rule-")
	ruleBinding.AddSpecial("x")

	edgeScope := NewBindingEnv(enclosing)
	edgeScope.Bindings["x"] = "Z"
	if got := edgeScope.LookupWithFallback("x", ruleBinding, edgeScope); got != "Z" {
		t.Fatal(got)
	}

	bare := NewBindingEnv(enclosing)
	if got := bare.LookupWithFallback("x", ruleBinding, enclosing); got != "rule-Y" {
		t.Fatal(got)
	}
	if got := bare.LookupWithFallback("x", nil, enclosing); got != "Y" {
		t.Fatal(got)
	}
}

func TestIsReservedBinding(t *testing.T) {
	for _, name := range []string{
		"command", "depfile", "dyndep", "description", "deps", "generator",
		"pool", "restat", "rspfile", "rspfile_content", "msvc_deps_prefix",
		"symlink_outputs",
	} {
		if !IsReservedBinding(name) {
			t.Fatalf("%s must be reserved", name)
		}
	}
	if IsReservedBinding("cflags") {
		t.Fatal("cflags must not be reserved")
	}
}

func TestPhonyRule_InstalledAtRoot(t *testing.T) {
	state := NewState()
	if state.Bindings.LookupRule("phony") != PhonyRule {
		t.Fatal("phony must be predefined in the root scope")
	}
	child := NewBindingEnv(state.Bindings)
	if child.LookupRule("phony") != PhonyRule {
		t.Fatal("phony must be visible from nested scopes")
	}
}
