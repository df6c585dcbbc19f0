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

// Package constraint defines the constraint contract evaluated against
// candidate schedules, along with a set of builtin constraints covering
// common collegiate scheduling rules. Evaluation functions are pure:
// given the same schedule and parameters they must return the same
// result, which is what makes result caching sound.
package constraint

import (
	"context"

	"github.com/pkg/errors"

	"openslate.dev/openslate/internal/set"
	"openslate.dev/openslate/pkg/schedule"
)

// Category separates constraints that invalidate a schedule from those
// that merely cost points.
type Category string

const (
	// CategoryHard marks constraints whose violations make the schedule
	// invalid regardless of score.
	CategoryHard Category = "hard"
	// CategorySoft marks constraints that contribute weighted penalties
	// but never invalidate the schedule on their own.
	CategorySoft Category = "soft"
)

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	return c == CategoryHard || c == CategorySoft
}

// Func evaluates one constraint against a schedule. Implementations
// must be pure and safe for concurrent use; params carries the
// constraint's parameter map so externally adjusted parameters take
// effect without re-registering.
type Func func(ctx context.Context, s *schedule.Schedule, params map[string]interface{}) (*Result, error)

// Scope declares which entities a constraint's outcome depends on.
// An empty scope means the constraint reads the whole schedule, so any
// change forces re-evaluation. Narrow scopes let incremental evaluation
// reuse prior results for untouched constraints.
type Scope struct {
	TeamIDs  []string `json:"teamIds,omitempty"`
	VenueIDs []string `json:"venueIds,omitempty"`
	GameIDs  []string `json:"gameIds,omitempty"`
}

// Global reports whether the scope covers the entire schedule.
func (s Scope) Global() bool {
	return len(s.TeamIDs) == 0 && len(s.VenueIDs) == 0 && len(s.GameIDs) == 0
}

// Overlaps reports whether a schedule delta touches this scope. Global
// scopes overlap every non-empty delta.
func (s Scope) Overlaps(d *schedule.Delta) bool {
	if d == nil || d.Empty() {
		return false
	}
	if s.Global() {
		return true
	}
	return set.Overlaps(s.TeamIDs, d.TeamIDs) ||
		set.Overlaps(s.VenueIDs, d.VenueIDs) ||
		set.Overlaps(s.GameIDs, d.GameIDs)
}

// Constraint is a registered scheduling rule. Weight scales the
// constraint's score in the aggregate and may be adjusted after
// registration through the registry.
type Constraint struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Category Category               `json:"category"`
	Weight   float64                `json:"weight"`
	Params   map[string]interface{} `json:"params,omitempty"`
	Scope    Scope                  `json:"scope,omitempty"`
	Evaluate Func                   `json:"-"`
}

// Validate checks the fields every constraint must carry before it can
// be registered.
func (c *Constraint) Validate() error {
	if c == nil {
		return errors.New("constraint is nil")
	}
	if c.ID == "" {
		return errors.New("constraint id is required")
	}
	if c.Type == "" {
		return errors.Errorf("constraint %q: type is required", c.ID)
	}
	if !c.Category.Valid() {
		return errors.Errorf("constraint %q: unknown category %q", c.ID, c.Category)
	}
	if c.Weight < 0 {
		return errors.Errorf("constraint %q: weight must not be negative", c.ID)
	}
	if c.Evaluate == nil {
		return errors.Errorf("constraint %q: evaluation function is required", c.ID)
	}
	return nil
}

// Result is the outcome of evaluating one constraint. Score is a
// non-negative penalty where zero means fully satisfied.
type Result struct {
	Score      float64      `json:"score"`
	Violations []*Violation `json:"violations,omitempty"`
}

// Violation describes one concrete breach of a constraint.
type Violation struct {
	ConstraintID   string   `json:"constraintId"`
	ConstraintType string   `json:"constraintType"`
	Message        string   `json:"message"`
	GameIDs        []string `json:"gameIds,omitempty"`
}

// Builtin constraint types. The registry derives evaluation-cost
// estimates from these names, so custom constraints reusing a builtin
// type inherit its cost profile.
const (
	TypeRestDays          = "restDays"
	TypeTravelDistance    = "travelDistance"
	TypeVenueAvailability = "venueAvailability"
	TypeConsecutiveHome   = "consecutiveHome"
)

// baseComplexity estimates relative evaluation cost per constraint
// type. Values are unitless and only their ordering matters.
var baseComplexity = map[string]float64{
	TypeVenueAvailability: 1.5,
	TypeRestDays:          2.0,
	TypeConsecutiveHome:   2.5,
	TypeTravelDistance:    4.0,
}

// DefaultBaseComplexity is assumed for constraint types without a
// registered cost estimate.
const DefaultBaseComplexity = 3.0

// BaseComplexity returns the cost estimate for a constraint type.
func BaseComplexity(constraintType string) float64 {
	if c, ok := baseComplexity[constraintType]; ok {
		return c
	}
	return DefaultBaseComplexity
}
