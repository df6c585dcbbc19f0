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

package schedule

import (
	"sort"

	"openslate.dev/openslate/internal/set"
)

// Delta describes how a schedule changed between two evaluations.
//
// GameIDs, TeamIDs and VenueIDs name every entity affected by the
// change: games whose content differs in either direction, plus the
// teams and venues those games touch in either version. They are the
// sets matched against constraint scopes to decide which results can
// be reused.
//
// Changed counts records that actually differ (games added, removed or
// modified, and teams added or removed), Total counts the distinct
// records across both versions, and Fraction is their ratio. A game
// moving to a new date touches two teams but changes one record, so
// Fraction stays an honest measure of churn.
type Delta struct {
	GameIDs  []string
	TeamIDs  []string
	VenueIDs []string

	Changed  int
	Total    int
	Fraction float64
}

// Empty reports whether the two schedules hold identical content.
func (d *Delta) Empty() bool {
	return d.Changed == 0
}

// Diff computes the Delta between two canonical schedule views. Both
// arguments must be non-nil; Canonicalize never returns nil so callers
// holding a previous view can always diff against a fresh one.
func Diff(before, after *Canonical) *Delta {
	oldGames := indexGames(before.Games)
	newGames := indexGames(after.Games)

	var changedGames []string
	touched := map[string]*struct{ teams, venues []string }{}
	note := func(id string, g CanonicalGame) {
		t := touched[id]
		if t == nil {
			t = &struct{ teams, venues []string }{}
			touched[id] = t
		}
		t.teams = append(t.teams, g.Home, g.Away)
		if g.Venue != "" {
			t.venues = append(t.venues, g.Venue)
		}
	}

	for id, g := range newGames {
		old, ok := oldGames[id]
		if ok && old == g {
			continue
		}
		changedGames = append(changedGames, id)
		note(id, g)
		if ok {
			note(id, old)
		}
	}
	for id, g := range oldGames {
		if _, ok := newGames[id]; !ok {
			changedGames = append(changedGames, id)
			note(id, g)
		}
	}

	var teamIDs, venueIDs []string
	for _, t := range touched {
		teamIDs = set.Union(teamIDs, t.teams)
		venueIDs = set.Union(venueIDs, t.venues)
	}

	// Roster changes count as changed records and affect scope matching
	// even when no game references the team yet.
	addedTeams := set.Difference(after.Teams, before.Teams)
	removedTeams := set.Difference(before.Teams, after.Teams)
	changedTeams := set.Union(addedTeams, removedTeams)
	teamIDs = set.Union(teamIDs, changedTeams)

	sort.Strings(changedGames)
	sort.Strings(teamIDs)
	sort.Strings(venueIDs)

	d := &Delta{
		GameIDs:  changedGames,
		TeamIDs:  teamIDs,
		VenueIDs: venueIDs,
		Changed:  len(changedGames) + len(changedTeams),
		Total:    len(set.Union(before.Teams, after.Teams)) + len(unionGameIDs(oldGames, newGames)),
	}
	if d.Total > 0 {
		d.Fraction = float64(d.Changed) / float64(d.Total)
	}
	return d
}

func indexGames(games []CanonicalGame) map[string]CanonicalGame {
	m := make(map[string]CanonicalGame, len(games))
	for _, g := range games {
		m[g.ID] = g
	}
	return m
}

func unionGameIDs(a, b map[string]CanonicalGame) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
