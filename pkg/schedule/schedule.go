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

// Package schedule defines the schedule records scored by the evaluation
// engine: teams, venues, games, and the candidate slate that groups them.
// The package also provides the canonical projection used for
// fingerprinting and the entity-level delta used by incremental
// re-evaluation.
package schedule

import (
	"time"
)

// Team is one participating program.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Venue is a playing site. Coordinates are decimal degrees; they feed
// travel-distance constraints and may be zero when unknown.
type Venue struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Game is a single scheduled contest between two teams at a venue.
type Game struct {
	ID         string    `json:"id"`
	HomeTeamID string    `json:"homeTeamId"`
	AwayTeamID string    `json:"awayTeamId"`
	VenueID    string    `json:"venueId"`
	Date       time.Time `json:"date"`
}

// Schedule is a candidate slate of games for one season of one sport.
// Slices carry no ordering significance: two schedules with the same
// content in a different order are the same schedule.
type Schedule struct {
	ID     string   `json:"id,omitempty"`
	Sport  string   `json:"sport"`
	Season string   `json:"season"`
	Teams  []*Team  `json:"teams"`
	Venues []*Venue `json:"venues,omitempty"`
	Games  []*Game  `json:"games"`
}

// TeamByID returns the team with the given id, or nil.
func (s *Schedule) TeamByID(id string) *Team {
	for _, t := range s.Teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// VenueByID returns the venue with the given id, or nil.
func (s *Schedule) VenueByID(id string) *Venue {
	for _, v := range s.Venues {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// GamesByTeam groups games by participating team id. Each game appears
// under both its home and away team.
func (s *Schedule) GamesByTeam() map[string][]*Game {
	byTeam := make(map[string][]*Game, len(s.Teams))
	for _, g := range s.Games {
		byTeam[g.HomeTeamID] = append(byTeam[g.HomeTeamID], g)
		byTeam[g.AwayTeamID] = append(byTeam[g.AwayTeamID], g)
	}
	return byTeam
}
