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
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"openslate.dev/openslate/pkg/schedule"
)

// tryIncremental re-evaluates only the constraints whose scope the edit
// touches and reuses the baseline's entries for the rest. It declines
// (ok false) when incremental evaluation is disabled, no baseline exists,
// or the edit changed too large a fraction of the schedule. A constraint
// with no baseline entry counts as touched, so constraints registered
// after the baseline are evaluated rather than silently omitted. The same
// goes for a constraint whose weight changed since the baseline: its
// entry is recomputed so the current weight applies.
func (e *Engine) tryIncremental(ctx context.Context, s *schedule.Schedule, fp string, canonical *schedule.Canonical, start time.Time) (*Result, bool) {
	if !e.incrementalEnabled {
		return nil, false
	}
	e.mu.RLock()
	base := e.baseline
	e.mu.RUnlock()
	if base == nil {
		return nil, false
	}

	delta := schedule.Diff(base.canonical, canonical)
	if delta.Fraction > e.incrementalMaxFrac {
		logger.WithFields(logrus.Fields{
			"fraction": delta.Fraction,
			"changed":  delta.Changed,
		}).Debug("edit too large for incremental evaluation, running a full pass")
		return nil, false
	}

	regs := e.ordered()
	breakdown := make(map[string]*Entry, len(regs))
	var affected []*registration
	e.mu.RLock()
	for _, reg := range regs {
		prior := base.result.Breakdown[reg.c.ID]
		if prior != nil && prior.Weight == reg.c.Weight && !reg.c.Scope.Overlaps(delta) {
			breakdown[reg.c.ID] = prior
			continue
		}
		affected = append(affected, reg)
	}
	e.mu.RUnlock()

	for _, reg := range affected {
		if ctx.Err() != nil {
			return nil, false
		}
		breakdown[reg.c.ID] = e.safeEvaluate(ctx, s, fp, reg)
	}

	r := e.assemble(ctx, fp, ModeIncremental, start, breakdown)
	logger.WithFields(logrus.Fields{
		"affected": len(affected),
		"reused":   len(regs) - len(affected),
		"fraction": delta.Fraction,
	}).Debug("incremental evaluation reused baseline entries")
	return r, true
}
