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

package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

// defaultRetryBackoff keeps retry delays short because evaluation calls
// sit on an interactive path.
const defaultRetryBackoff = "[0.05 2] *1.5 ~0.33 <60"

// parseRetryBackoff builds an exponential backoff from the compact
// "[InitInterval MaxInterval] *Multiplier ~RandomizationFactor <MaxElapsedTime"
// form. All values are in seconds, e.g. "[0.05 2] *1.5 ~0.33 <60".
func parseRetryBackoff(s string) (*backoff.ExponentialBackOff, error) {
	b := backoff.NewExponentialBackOff()
	for _, word := range strings.Fields(s) {
		switch {
		case strings.HasPrefix(word, "["):
			v, err := parseSeconds(strings.TrimPrefix(word, "["))
			if err != nil {
				return nil, errors.Wrap(err, "cannot parse InitInterval value")
			}
			b.InitialInterval = v
		case strings.HasSuffix(word, "]"):
			v, err := parseSeconds(strings.TrimSuffix(word, "]"))
			if err != nil {
				return nil, errors.Wrap(err, "cannot parse MaxInterval value")
			}
			b.MaxInterval = v
		case strings.HasPrefix(word, "*"):
			v, err := strconv.ParseFloat(strings.TrimPrefix(word, "*"), 64)
			if err != nil {
				return nil, errors.Wrap(err, "cannot parse Multiplier value")
			}
			b.Multiplier = v
		case strings.HasPrefix(word, "~"):
			v, err := strconv.ParseFloat(strings.TrimPrefix(word, "~"), 64)
			if err != nil {
				return nil, errors.Wrap(err, "cannot parse RandomizationFactor value")
			}
			b.RandomizationFactor = v
		case strings.HasPrefix(word, "<"):
			v, err := parseSeconds(strings.TrimPrefix(word, "<"))
			if err != nil {
				return nil, errors.Wrap(err, "cannot parse MaxElapsedTime value")
			}
			b.MaxElapsedTime = v
		default:
			return nil, errors.Errorf("unexpected %q in backoff value", word)
		}
	}
	return b, nil
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}
