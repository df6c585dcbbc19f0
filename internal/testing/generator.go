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

// Package testing provides deterministic schedule and constraint
// fixtures for benchmarks and tests.
package testing

import (
	"fmt"
	"time"

	"openslate.dev/openslate/pkg/constraint"
	"openslate.dev/openslate/pkg/schedule"
)

// ScheduleParams sizes a generated slate. Generation is a pure function
// of the params: the same params always produce a schedule with the same
// fingerprint.
type ScheduleParams struct {
	Sport  string
	Season string
	// Teams is rounded up to the next even count so every team plays in
	// every round.
	Teams int
	Start time.Time
	// RestDays is the number of full rest days between a team's
	// consecutive games.
	RestDays int
}

// GenerateSchedule builds a single round-robin slate with the circle
// method: one team holds the pivot seat while the rest rotate one seat
// per round, and hosting alternates with round parity. Every team plays
// exactly once per round at the host's arena, so the slate satisfies the
// builtin hard constraints out of the box.
func GenerateSchedule(p ScheduleParams) *schedule.Schedule {
	if p.Sport == "" {
		p.Sport = "basketball"
	}
	if p.Season == "" {
		p.Season = "2023-24"
	}
	if p.Teams < 2 {
		p.Teams = 2
	}
	if p.Teams%2 != 0 {
		p.Teams++
	}
	if p.Start.IsZero() {
		p.Start = time.Date(2023, time.November, 6, 19, 0, 0, 0, time.UTC)
	}
	if p.RestDays < 1 {
		p.RestDays = 2
	}

	s := &schedule.Schedule{
		ID:     fmt.Sprintf("generated-%d-team", p.Teams),
		Sport:  p.Sport,
		Season: p.Season,
	}
	for i := 0; i < p.Teams; i++ {
		s.Teams = append(s.Teams, &schedule.Team{
			ID:   fmt.Sprintf("team-%03d", i+1),
			Name: fmt.Sprintf("Team %03d", i+1),
		})
		s.Venues = append(s.Venues, &schedule.Venue{
			ID:        fmt.Sprintf("arena-%03d", i+1),
			Name:      fmt.Sprintf("Arena %03d", i+1),
			Latitude:  30 + float64(i%10),
			Longitude: -120 + 2*float64(i/10),
		})
	}

	rotation := make([]int, p.Teams-1)
	for i := range rotation {
		rotation[i] = i + 1
	}
	gameNum := 0
	addGame := func(round, home, away int) {
		if round%2 == 1 {
			home, away = away, home
		}
		gameNum++
		s.Games = append(s.Games, &schedule.Game{
			ID:         fmt.Sprintf("g%04d", gameNum),
			HomeTeamID: s.Teams[home].ID,
			AwayTeamID: s.Teams[away].ID,
			VenueID:    s.Venues[home].ID,
			Date:       p.Start.AddDate(0, 0, round*(p.RestDays+1)),
		})
	}
	for round := 0; round < p.Teams-1; round++ {
		addGame(round, 0, rotation[0])
		for i := 1; i < p.Teams/2; i++ {
			addGame(round, rotation[i], rotation[len(rotation)-i])
		}
		last := rotation[len(rotation)-1]
		copy(rotation[1:], rotation[:len(rotation)-1])
		rotation[0] = last
	}
	return s
}

// MutateSchedule returns a copy of s with one game's date shifted.
// Successive iterations cycle through the games, so a benchmark loop
// edits a different record each pass while leaving the input untouched.
func MutateSchedule(s *schedule.Schedule, iteration int) *schedule.Schedule {
	out := cloneSchedule(s)
	if len(out.Games) == 0 {
		return out
	}
	g := out.Games[iteration%len(out.Games)]
	g.Date = g.Date.AddDate(0, 0, 1+iteration%2)
	return out
}

// DefaultConstraints returns the builtin rule set benchmarks register:
// two hard rules and two soft preferences.
func DefaultConstraints() []*constraint.Constraint {
	return []*constraint.Constraint{
		constraint.RestDays(1),
		constraint.VenueClash(),
		constraint.MaxConsecutiveHome(3),
		constraint.MinimizeTravel(),
	}
}

// SyntheticConstraints returns n soft constraints spread across the
// builtin evaluators, each under its own id, for exercising large
// constraint sets.
func SyntheticConstraints(n int) []*constraint.Constraint {
	out := make([]*constraint.Constraint, 0, n)
	for i := 0; i < n; i++ {
		var c *constraint.Constraint
		switch i % 4 {
		case 0:
			c = constraint.RestDays(1 + i%3)
		case 1:
			c = constraint.MaxConsecutiveHome(2 + i%3)
		case 2:
			c = constraint.MinimizeTravel()
		default:
			c = constraint.VenueClash()
		}
		c.ID = fmt.Sprintf("%s-%03d", c.ID, i+1)
		c.Category = constraint.CategorySoft
		out = append(out, c)
	}
	return out
}

func cloneSchedule(s *schedule.Schedule) *schedule.Schedule {
	out := &schedule.Schedule{
		ID:     s.ID,
		Sport:  s.Sport,
		Season: s.Season,
	}
	for _, t := range s.Teams {
		c := *t
		out.Teams = append(out.Teams, &c)
	}
	for _, v := range s.Venues {
		c := *v
		out.Venues = append(out.Venues, &c)
	}
	for _, g := range s.Games {
		c := *g
		out.Games = append(out.Games, &c)
	}
	return out
}
