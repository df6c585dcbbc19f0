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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"openslate.dev/openslate/pkg/schedule"
)

func TestFingerprintIgnoresOrderingAndLabels(t *testing.T) {
	base := Fingerprint(conferenceSchedule())
	require.Equal(t, base, Fingerprint(conferenceSchedule()))

	shuffled := conferenceSchedule()
	shuffled.Teams[0], shuffled.Teams[2] = shuffled.Teams[2], shuffled.Teams[0]
	shuffled.Games[0], shuffled.Games[2] = shuffled.Games[2], shuffled.Games[0]
	shuffled.Venues[0], shuffled.Venues[1] = shuffled.Venues[1], shuffled.Venues[0]
	require.Equal(t, base, Fingerprint(shuffled))

	relabeled := conferenceSchedule()
	relabeled.ID = "draft-7"
	relabeled.Teams[0].Name = "The Blue Devils of Durham"
	require.Equal(t, base, Fingerprint(relabeled))

	zoned := conferenceSchedule()
	est := time.FixedZone("EST", -5*60*60)
	zoned.Games[0].Date = zoned.Games[0].Date.In(est)
	require.Equal(t, base, Fingerprint(zoned))
}

func TestFingerprintTracksContent(t *testing.T) {
	base := Fingerprint(conferenceSchedule())

	moved := conferenceSchedule()
	moved.Games[0].Date = moved.Games[0].Date.AddDate(0, 0, 1)
	require.NotEqual(t, base, Fingerprint(moved))

	rehomed := conferenceSchedule()
	rehomed.Games[0].VenueID = "dean-dome"
	require.NotEqual(t, base, Fingerprint(rehomed))

	swapped := conferenceSchedule()
	swapped.Games[0].HomeTeamID, swapped.Games[0].AwayTeamID =
		swapped.Games[0].AwayTeamID, swapped.Games[0].HomeTeamID
	require.NotEqual(t, base, Fingerprint(swapped))

	grown := conferenceSchedule()
	grown.Games = append(grown.Games, &schedule.Game{
		ID:         "g4",
		HomeTeamID: "nccu",
		AwayTeamID: "duke",
		VenueID:    "dean-dome",
		Date:       date(2024, time.January, 20),
	})
	require.NotEqual(t, base, Fingerprint(grown))

	nextSeason := conferenceSchedule()
	nextSeason.Season = "2024-25"
	require.NotEqual(t, base, Fingerprint(nextSeason))
}
