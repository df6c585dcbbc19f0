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

package constraint

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"openslate.dev/openslate/pkg/schedule"
)

// RestDays returns a hard constraint requiring at least minDays full
// rest days between consecutive games of every team. Two games on
// adjacent dates have zero rest days between them.
func RestDays(minDays int) *Constraint {
	return &Constraint{
		ID:       "rest-days",
		Type:     TypeRestDays,
		Category: CategoryHard,
		Weight:   1,
		Params:   map[string]interface{}{"minDays": minDays},
		Evaluate: evaluateRestDays,
	}
}

func evaluateRestDays(_ context.Context, s *schedule.Schedule, params map[string]interface{}) (*Result, error) {
	minDays := intParam(params, "minDays", 1)
	byTeam := s.GamesByTeam()
	res := &Result{}
	for _, teamID := range sortedTeamIDs(s) {
		games := gamesInDateOrder(byTeam[teamID])
		for i := 1; i < len(games); i++ {
			prev, cur := games[i-1], games[i]
			rest := calendarDaysBetween(prev.Date, cur.Date) - 1
			if rest >= minDays {
				continue
			}
			res.Score += float64(minDays - rest)
			res.Violations = append(res.Violations, &Violation{
				ConstraintID:   "rest-days",
				ConstraintType: TypeRestDays,
				Message: fmt.Sprintf("team %s has %d rest days between %s and %s, minimum is %d",
					teamID, max(rest, 0), prev.ID, cur.ID, minDays),
				GameIDs: []string{prev.ID, cur.ID},
			})
		}
	}
	return res, nil
}

// MinimizeTravel returns a soft constraint penalizing total travel
// distance. Each team's itinerary is walked in date order and the
// haversine distance between consecutive venues is charged at
// costPerKilometer points per kilometer (default 0.01). Legs longer
// than maxLegKilometers, when set above zero, additionally produce
// violations.
func MinimizeTravel() *Constraint {
	return &Constraint{
		ID:       "minimize-travel",
		Type:     TypeTravelDistance,
		Category: CategorySoft,
		Weight:   1,
		Params: map[string]interface{}{
			"costPerKilometer": 0.01,
			"maxLegKilometers": 0,
		},
		Evaluate: evaluateTravel,
	}
}

func evaluateTravel(_ context.Context, s *schedule.Schedule, params map[string]interface{}) (*Result, error) {
	costPerKm := floatParam(params, "costPerKilometer", 0.01)
	maxLegKm := floatParam(params, "maxLegKilometers", 0)
	byTeam := s.GamesByTeam()
	res := &Result{}
	for _, teamID := range sortedTeamIDs(s) {
		games := gamesInDateOrder(byTeam[teamID])
		for i := 1; i < len(games); i++ {
			from := s.VenueByID(games[i-1].VenueID)
			to := s.VenueByID(games[i].VenueID)
			if from == nil || to == nil {
				continue
			}
			km := haversineKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
			res.Score += km * costPerKm
			if maxLegKm > 0 && km > maxLegKm {
				res.Violations = append(res.Violations, &Violation{
					ConstraintID:   "minimize-travel",
					ConstraintType: TypeTravelDistance,
					Message: fmt.Sprintf("team %s travels %.0f km from %s to %s, limit is %.0f km",
						teamID, km, from.ID, to.ID, maxLegKm),
					GameIDs: []string{games[i-1].ID, games[i].ID},
				})
			}
		}
	}
	return res, nil
}

// VenueClash returns a hard constraint forbidding two games at the same
// venue on the same calendar date.
func VenueClash() *Constraint {
	return &Constraint{
		ID:       "venue-clash",
		Type:     TypeVenueAvailability,
		Category: CategoryHard,
		Weight:   1,
		Evaluate: evaluateVenueClash,
	}
}

func evaluateVenueClash(_ context.Context, s *schedule.Schedule, _ map[string]interface{}) (*Result, error) {
	type slot struct{ venue, day string }
	bySlot := map[slot][]string{}
	for _, g := range s.Games {
		if g.VenueID == "" {
			continue
		}
		k := slot{g.VenueID, g.Date.UTC().Format("2006-01-02")}
		bySlot[k] = append(bySlot[k], g.ID)
	}
	slots := make([]slot, 0, len(bySlot))
	for k := range bySlot {
		slots = append(slots, k)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].venue != slots[j].venue {
			return slots[i].venue < slots[j].venue
		}
		return slots[i].day < slots[j].day
	})

	res := &Result{}
	for _, k := range slots {
		ids := bySlot[k]
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		res.Score += float64(len(ids) - 1)
		res.Violations = append(res.Violations, &Violation{
			ConstraintID:   "venue-clash",
			ConstraintType: TypeVenueAvailability,
			Message:        fmt.Sprintf("venue %s hosts %d games on %s", k.venue, len(ids), k.day),
			GameIDs:        ids,
		})
	}
	return res, nil
}

// MaxConsecutiveHome returns a soft constraint penalizing home stands
// longer than maxGames consecutive home games.
func MaxConsecutiveHome(maxGames int) *Constraint {
	return &Constraint{
		ID:       "max-consecutive-home",
		Type:     TypeConsecutiveHome,
		Category: CategorySoft,
		Weight:   1,
		Params:   map[string]interface{}{"maxGames": maxGames},
		Evaluate: evaluateConsecutiveHome,
	}
}

func evaluateConsecutiveHome(_ context.Context, s *schedule.Schedule, params map[string]interface{}) (*Result, error) {
	maxGames := intParam(params, "maxGames", 3)
	if maxGames < 1 {
		maxGames = 1
	}
	byTeam := s.GamesByTeam()
	res := &Result{}
	for _, teamID := range sortedTeamIDs(s) {
		games := gamesInDateOrder(byTeam[teamID])
		run := 0
		var runIDs []string
		flush := func() {
			if run > maxGames {
				res.Score += float64(run - maxGames)
				res.Violations = append(res.Violations, &Violation{
					ConstraintID:   "max-consecutive-home",
					ConstraintType: TypeConsecutiveHome,
					Message: fmt.Sprintf("team %s plays %d consecutive home games, limit is %d",
						teamID, run, maxGames),
					GameIDs: append([]string(nil), runIDs...),
				})
			}
			run, runIDs = 0, nil
		}
		for _, g := range games {
			if g.HomeTeamID == teamID {
				run++
				runIDs = append(runIDs, g.ID)
				continue
			}
			flush()
		}
		flush()
	}
	return res, nil
}

func sortedTeamIDs(s *schedule.Schedule) []string {
	ids := make([]string, 0, len(s.Teams))
	for _, t := range s.Teams {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

func gamesInDateOrder(games []*schedule.Game) []*schedule.Game {
	out := append([]*schedule.Game(nil), games...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func calendarDaysBetween(a, b time.Time) int {
	au := a.UTC()
	bu := b.UTC()
	ad := time.Date(au.Year(), au.Month(), au.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(bu.Year(), bu.Month(), bu.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func intParam(params map[string]interface{}, key string, def int) int {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func floatParam(params map[string]interface{}, key string, def float64) float64 {
	if params == nil {
		return def
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
