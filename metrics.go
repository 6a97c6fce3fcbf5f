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
	"io"
	"sort"
	"sync"
	"time"
)

// metric is a single accumulated timer, identified by name.
type metric struct {
	name  string
	count int
	sum   time.Duration
}

var metricsState struct {
	mu  sync.Mutex
	all map[string]*metric
}

// metricRecord times a section of code. Use as:
//
//	defer metricRecord(".ninja parse")()
func metricRecord(name string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		metricsState.mu.Lock()
		if metricsState.all == nil {
			metricsState.all = map[string]*metric{}
		}
		m := metricsState.all[name]
		if m == nil {
			m = &metric{name: name}
			metricsState.all[name] = m
		}
		m.count++
		m.sum += d
		metricsState.mu.Unlock()
	}
}

// DumpMetrics prints the accumulated timers, for the CLI's debug output.
func DumpMetrics(w io.Writer) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	names := make([]string, 0, len(metricsState.all))
	for name := range metricsState.all {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "%-20s\t%-6s\t%-9s\t%s\n", "metric", "count", "avg (us)", "total (ms)")
	for _, name := range names {
		m := metricsState.all[name]
		avg := float64(m.sum.Microseconds()) / float64(m.count)
		fmt.Fprintf(w, "%-20s\t%-6d\t%-8.1f\t%.1f\n", m.name, m.count, avg, float64(m.sum.Milliseconds()))
	}
}
