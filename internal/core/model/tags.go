// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"sort"
	"strings"
)

// LowercaseCounts folds label names to lowercase. Labels that only differ by
// case are summed.
func LowercaseCounts(counts map[string]int) map[string]int {
	out := make(map[string]int, len(counts))
	for label, count := range counts {
		out[strings.ToLower(label)] += count
	}
	return out
}

// NotificationTags returns the first comma separated token of every tag key,
// trimmed and sorted, so "species, subspecies" is announced as "species".
func NotificationTags(tags map[string]int) []string {
	out := make([]string, 0, len(tags))
	for key := range tags {
		token, _, _ := strings.Cut(key, ",")
		out = append(out, strings.TrimSpace(token))
	}
	sort.Strings(out)
	return out
}
