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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedule() *Schedule {
	return &Schedule{
		ID:     "slate-1",
		Sport:  "basketball",
		Season: "2023-24",
		Teams: []*Team{
			{ID: "t1", Name: "Bears"},
			{ID: "t2", Name: "Eagles"},
			{ID: "t3", Name: "Wolves"},
		},
		Venues: []*Venue{
			{ID: "v1", Name: "North Arena", Latitude: 40.01, Longitude: -83.02},
			{ID: "v2", Name: "South Arena", Latitude: 39.13, Longitude: -84.51},
		},
		Games: []*Game{
			{ID: "g1", HomeTeamID: "t1", AwayTeamID: "t2", VenueID: "v1", Date: time.Date(2023, 11, 3, 19, 0, 0, 0, time.UTC)},
			{ID: "g2", HomeTeamID: "t2", AwayTeamID: "t3", VenueID: "v2", Date: time.Date(2023, 11, 10, 19, 0, 0, 0, time.UTC)},
			{ID: "g3", HomeTeamID: "t3", AwayTeamID: "t1", VenueID: "v2", Date: time.Date(2023, 11, 17, 19, 0, 0, 0, time.UTC)},
		},
	}
}

func TestCanonicalizeIgnoresOrder(t *testing.T) {
	s1 := testSchedule()
	s2 := testSchedule()
	s2.Teams[0], s2.Teams[2] = s2.Teams[2], s2.Teams[0]
	s2.Games[0], s2.Games[1], s2.Games[2] = s2.Games[2], s2.Games[0], s2.Games[1]

	require.Equal(t, Canonicalize(s1), Canonicalize(s2))
}

func TestCanonicalizeIgnoresLabels(t *testing.T) {
	s1 := testSchedule()
	s2 := testSchedule()
	s2.ID = "a-different-id"
	s2.Teams[0].Name = "Renamed Bears"
	s2.Venues[0].Name = "Renamed Arena"

	require.Equal(t, Canonicalize(s1), Canonicalize(s2))
}

func TestCanonicalizeNormalizesZones(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	s1 := testSchedule()
	s2 := testSchedule()
	s2.Games[0].Date = s2.Games[0].Date.In(est)

	require.Equal(t, Canonicalize(s1), Canonicalize(s2))
}

func TestCanonicalizeSeesContentChanges(t *testing.T) {
	base := Canonicalize(testSchedule())

	moved := testSchedule()
	moved.Games[0].Date = moved.Games[0].Date.AddDate(0, 0, 1)
	assert.NotEqual(t, base, Canonicalize(moved))

	rehomed := testSchedule()
	rehomed.Games[1].VenueID = "v1"
	assert.NotEqual(t, base, Canonicalize(rehomed))

	swapped := testSchedule()
	swapped.Games[2].HomeTeamID, swapped.Games[2].AwayTeamID = swapped.Games[2].AwayTeamID, swapped.Games[2].HomeTeamID
	assert.NotEqual(t, base, Canonicalize(swapped))
}

func TestDiffIdentical(t *testing.T) {
	d := Diff(Canonicalize(testSchedule()), Canonicalize(testSchedule()))
	require.True(t, d.Empty())
	require.Zero(t, d.Fraction)
	require.Empty(t, d.GameIDs)
	require.Empty(t, d.TeamIDs)
	require.Empty(t, d.VenueIDs)
}

func TestDiffSingleGameMove(t *testing.T) {
	before := Canonicalize(testSchedule())
	after := testSchedule()
	after.Games[0].Date = after.Games[0].Date.AddDate(0, 0, 2)

	d := Diff(before, Canonicalize(after))
	require.False(t, d.Empty())
	assert.Equal(t, []string{"g1"}, d.GameIDs)
	assert.Equal(t, []string{"t1", "t2"}, d.TeamIDs)
	assert.Equal(t, []string{"v1"}, d.VenueIDs)
	assert.Equal(t, 1, d.Changed)
	// Three teams plus three games on both sides.
	assert.Equal(t, 6, d.Total)
	assert.InDelta(t, 1.0/6.0, d.Fraction, 1e-9)
}

func TestDiffVenueSwapTouchesBothVenues(t *testing.T) {
	before := Canonicalize(testSchedule())
	after := testSchedule()
	after.Games[1].VenueID = "v1"

	d := Diff(before, Canonicalize(after))
	assert.Equal(t, []string{"g2"}, d.GameIDs)
	assert.Equal(t, []string{"v1", "v2"}, d.VenueIDs)
}

func TestDiffGameAddedAndRemoved(t *testing.T) {
	before := Canonicalize(testSchedule())
	after := testSchedule()
	after.Games = after.Games[:2]
	after.Games = append(after.Games, &Game{
		ID: "g4", HomeTeamID: "t1", AwayTeamID: "t3", VenueID: "v1",
		Date: time.Date(2023, 12, 1, 19, 0, 0, 0, time.UTC),
	})

	d := Diff(before, Canonicalize(after))
	assert.Equal(t, []string{"g3", "g4"}, d.GameIDs)
	assert.Equal(t, 2, d.Changed)
	// Three teams plus the union of four distinct game ids.
	assert.Equal(t, 7, d.Total)
}

func TestDiffRosterChange(t *testing.T) {
	before := Canonicalize(testSchedule())
	after := testSchedule()
	after.Teams = append(after.Teams, &Team{ID: "t9", Name: "Hawks"})

	d := Diff(before, Canonicalize(after))
	assert.Empty(t, d.GameIDs)
	assert.Equal(t, []string{"t9"}, d.TeamIDs)
	assert.Equal(t, 1, d.Changed)
	assert.Equal(t, 7, d.Total)
}

func TestScheduleLookups(t *testing.T) {
	s := testSchedule()
	require.Equal(t, "Eagles", s.TeamByID("t2").Name)
	require.Nil(t, s.TeamByID("nope"))
	require.Equal(t, "South Arena", s.VenueByID("v2").Name)
	require.Nil(t, s.VenueByID("nope"))

	byTeam := s.GamesByTeam()
	require.Len(t, byTeam["t1"], 2)
	require.Len(t, byTeam["t2"], 2)
	require.Len(t, byTeam["t3"], 2)
}
