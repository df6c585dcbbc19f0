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

// Package set provides small helpers for treating string slices as sets.
// Inputs are never mutated. Output order is unspecified unless stated
// otherwise; callers that need determinism should sort.
package set

// Union returns the distinct values present in either a or b.
func Union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range [][]string{a, b} {
		for _, v := range s {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Intersection returns the distinct values present in both a and b.
func Intersection(a, b []string) []string {
	inA := make(map[string]struct{}, len(a))
	for _, v := range a {
		inA[v] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, v := range b {
		if _, ok := inA[v]; !ok {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Difference returns the distinct values present in a but not in b.
func Difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, v := range a {
		if _, ok := inB[v]; ok {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Overlaps reports whether a and b share at least one value. It short
// circuits on the first match, which matters on the hot path where
// callers only need a yes or no.
func Overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	in := make(map[string]struct{}, len(small))
	for _, v := range small {
		in[v] = struct{}{}
	}
	for _, v := range large {
		if _, ok := in[v]; ok {
			return true
		}
	}
	return false
}
