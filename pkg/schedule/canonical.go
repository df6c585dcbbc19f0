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
	"time"
)

// CanonicalGame is the projection of a Game that participates in
// fingerprinting and diffing. Dates are normalized to UTC RFC 3339 so
// that equal instants in different zones compare equal.
type CanonicalGame struct {
	ID    string `json:"id"`
	Home  string `json:"home"`
	Away  string `json:"away"`
	Venue string `json:"venue"`
	Date  string `json:"date"`
}

// Canonical is an order-independent view of a schedule. Two schedules
// holding the same teams and games produce identical Canonical values
// regardless of slice order, so anything derived from a Canonical (the
// fingerprint in particular) is stable under reordering.
type Canonical struct {
	Sport  string          `json:"sport"`
	Season string          `json:"season"`
	Teams  []string        `json:"teams"`
	Games  []CanonicalGame `json:"games"`
}

// Canonicalize builds the canonical view of s. Teams are reduced to
// their ids and sorted, games are sorted by id. The schedule's own ID
// and display names are deliberately excluded: relabeling a schedule
// does not change what is being played.
func Canonicalize(s *Schedule) *Canonical {
	c := &Canonical{
		Sport:  s.Sport,
		Season: s.Season,
		Teams:  make([]string, 0, len(s.Teams)),
		Games:  make([]CanonicalGame, 0, len(s.Games)),
	}
	for _, t := range s.Teams {
		c.Teams = append(c.Teams, t.ID)
	}
	sort.Strings(c.Teams)

	for _, g := range s.Games {
		c.Games = append(c.Games, CanonicalGame{
			ID:    g.ID,
			Home:  g.HomeTeamID,
			Away:  g.AwayTeamID,
			Venue: g.VenueID,
			Date:  canonicalDate(g.Date),
		})
	}
	sort.Slice(c.Games, func(i, j int) bool {
		return c.Games[i].ID < c.Games[j].ID
	})
	return c
}

func canonicalDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
