// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// binja loads a Ninja manifest through the binary-cache pipeline and
// reports on the resulting build graph and cache file.
package main

import (
	"fmt"
	"os"

	"github.com/jomof/binja"
	flag "github.com/ogier/pflag"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(Main())
}

func Main() int {
	var (
		chdir       = flag.StringP("chdir", "C", "", "change to dir before doing anything else")
		inputFile   = flag.StringP("file", "f", "build.ninja", "specify input build file")
		dupeEdges   = flag.String("dupe-edges", "warn", "duplicate edge outputs: warn, err")
		phonyCycles = flag.String("phony-cycles", "warn", "phony self-cycles: warn, err")
		compileOnly = flag.Bool("compile", false, "regenerate the manifest cache and exit")
		dump        = flag.Bool("dump", false, "list the records of the manifest cache and exit")
		showMetrics = flag.Bool("metrics", false, "print internal timers on exit")
		verbose     = flag.BoolP("verbose", "v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *chdir != "" {
		if err := os.Chdir(*chdir); err != nil {
			logrus.Errorf("chdir to '%s': %s", *chdir, err)
			return 1
		}
		logrus.Debugf("entering directory '%s'", *chdir)
	}

	var options binja.ManifestParserOptions
	switch *dupeEdges {
	case "warn":
	case "err":
		options.DupeEdgeAction = binja.DupeEdgeActionError
	default:
		logrus.Errorf("invalid --dupe-edges value '%s'", *dupeEdges)
		return 1
	}
	switch *phonyCycles {
	case "warn":
	case "err":
		options.PhonyCycleAction = binja.PhonyCycleActionError
	default:
		logrus.Errorf("invalid --phony-cycles value '%s'", *phonyCycles)
		return 1
	}

	if *dump {
		data, err := os.ReadFile(binja.CachePath(*inputFile))
		if err != nil {
			logrus.Errorf("%s", err)
			return 1
		}
		if err := binja.DumpCache(os.Stdout, data); err != nil {
			logrus.Errorf("%s", err)
			return 1
		}
		return 0
	}

	if *compileOnly {
		di := binja.RealDiskInterface{}
		input, err := di.ReadFile(*inputFile)
		if err != nil {
			logrus.Errorf("loading '%s': %s", *inputFile, err)
			return 1
		}
		data, err := binja.CompileManifest(*inputFile, input)
		if err != nil {
			logrus.Errorf("%s", err)
			return 1
		}
		binPath := binja.CachePath(*inputFile)
		if err := di.WriteFile(binPath, data); err != nil {
			logrus.Errorf("%s", err)
			return 1
		}
		logrus.Debugf("wrote %d bytes to %s", len(data), binPath)
		return 0
	}

	state := binja.NewState()
	parser := binja.NewManifestParser(&state, nil, options)
	if err := parser.Load(*inputFile); err != nil {
		logrus.Errorf("%s", err)
		return 1
	}

	ret := 0
	if targets := flag.Args(); len(targets) != 0 {
		for _, target := range targets {
			node := state.LookupNode(binja.CanonicalizePath(target))
			if node == nil {
				msg := fmt.Sprintf("unknown target '%s'", target)
				if suggestion := state.SpellcheckNode(target); suggestion != nil {
					msg += fmt.Sprintf(", did you mean '%s'?", suggestion.Path)
				}
				logrus.Error(msg)
				ret = 1
				continue
			}
			describeNode(node)
		}
	} else {
		defaults, err := state.DefaultNodes()
		if err != nil {
			logrus.Errorf("%s", err)
			return 1
		}
		fmt.Printf("%s: %d rules, %d pools, %d edges, %d paths\n",
			*inputFile, len(state.Bindings.Rules), len(state.Pools),
			len(state.Edges), len(state.Paths))
		for _, n := range defaults {
			fmt.Printf("default %s\n", n.Path)
		}
	}

	if *showMetrics {
		binja.DumpMetrics(os.Stdout)
	}
	return ret
}

func describeNode(node *binja.Node) {
	if node.InEdge != nil {
		fmt.Printf("%s: built by rule %s from %d inputs\n",
			node.Path, node.InEdge.Rule.Name, len(node.InEdge.Inputs))
	} else {
		fmt.Printf("%s: source file\n", node.Path)
	}
	for _, e := range node.OutEdges {
		if len(e.Outputs) != 0 {
			fmt.Printf("  input to %s via rule %s\n", e.Outputs[0].Path, e.Rule.Name)
		}
	}
}
