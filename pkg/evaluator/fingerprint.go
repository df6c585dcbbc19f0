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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"openslate.dev/openslate/pkg/schedule"
)

// Fingerprint returns the sha256 hex digest of the schedule's canonical
// form. Schedules holding the same content in any slice order share a
// fingerprint; any content change produces a new one.
func Fingerprint(s *schedule.Schedule) string {
	return fingerprintCanonical(schedule.Canonicalize(s))
}

func fingerprintCanonical(c *schedule.Canonical) string {
	// The canonical view is plain strings and slices; Marshal cannot fail
	// on it.
	blob, _ := json.Marshal(c)
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
