// Copyright 2023 The OpenSlate Authors
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

package evaluator

import (
	"fmt"
	"sort"
	"sync/atomic"

	"openslate.dev/openslate/pkg/constraint"
)

// registration tracks one constraint together with its derived cost
// estimate and its constraint-cache hit history. The hit counters are
// atomics because they are bumped from worker goroutines during parallel
// evaluation.
type registration struct {
	c          *constraint.Constraint
	complexity float64

	lookups int64
	hits    int64
}

// hitRate is the fraction of constraint-cache lookups that hit. A
// constraint with no lookup history rates zero.
func (r *registration) hitRate() float64 {
	lookups := atomic.LoadInt64(&r.lookups)
	if lookups == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&r.hits)) / float64(lookups)
}

// priority orders soft constraints: the cheaper a constraint is and the
// more often its cached result is reusable, the earlier it runs.
func (r *registration) priority() float64 {
	return r.hitRate() / r.complexity
}

// Register adds a constraint to the engine. The engine owns the
// constraint after registration: weights are adjusted through
// UpdateWeight, not by writing the struct.
func (e *Engine) Register(c *constraint.Constraint) error {
	if err := c.Validate(); err != nil {
		return &ConfigurationError{Reason: err.Error()}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.registrations[c.ID]; ok {
		return &ConfigurationError{Reason: fmt.Sprintf("constraint %q is already registered", c.ID)}
	}
	e.registrations[c.ID] = &registration{
		c:          c,
		complexity: complexityOf(c),
	}
	return nil
}

// UpdateWeight changes a constraint's weight. The new weight applies to
// the next evaluation; cached schedule results computed under the old
// weight are not rewritten.
func (e *Engine) UpdateWeight(id string, weight float64) error {
	if weight < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("constraint %q: weight must not be negative", id)}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	reg, ok := e.registrations[id]
	if !ok {
		return &ConfigurationError{Reason: fmt.Sprintf("constraint %q is not registered", id)}
	}
	reg.c.Weight = weight
	return nil
}

// Constraints returns the registered constraints in evaluation order.
func (e *Engine) Constraints() []*constraint.Constraint {
	regs := e.ordered()
	out := make([]*constraint.Constraint, len(regs))
	for i, reg := range regs {
		out[i] = reg.c
	}
	return out
}

// ordered snapshots the registrations in evaluation order: hard
// constraints first by ascending complexity, then soft constraints by
// descending priority. Priority moves with the observed cache hit rates,
// so the order is recomputed on every call rather than stored.
func (e *Engine) ordered() []*registration {
	e.mu.RLock()
	regs := make([]*registration, 0, len(e.registrations))
	for _, reg := range e.registrations {
		regs = append(regs, reg)
	}
	e.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool {
		return evaluationOrderLess(regs[i], regs[j])
	})
	return regs
}

func evaluationOrderLess(a, b *registration) bool {
	aHard := a.c.Category == constraint.CategoryHard
	bHard := b.c.Category == constraint.CategoryHard
	if aHard != bHard {
		return aHard
	}
	if !aHard {
		if pa, pb := a.priority(), b.priority(); pa != pb {
			return pa > pb
		}
	}
	if a.complexity != b.complexity {
		return a.complexity < b.complexity
	}
	return a.c.ID < b.c.ID
}

// complexityOf estimates the relative evaluation cost of a constraint:
// the base cost of its type, half a point per parameter, times 1.5 when
// the constraint is hard.
func complexityOf(c *constraint.Constraint) float64 {
	complexity := constraint.BaseComplexity(c.Type) + 0.5*float64(len(c.Params))
	if c.Category == constraint.CategoryHard {
		complexity *= 1.5
	}
	return complexity
}
