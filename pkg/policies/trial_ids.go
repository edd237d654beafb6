// Copyright 2019 Google LLC
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

package policies

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// maxRangeLen bounds a single stored range so corrupt metadata cannot
// allocate without limit.
const maxRangeLen = 1 << 20

// trialIDSet is the set of completed trial ids a stored designer has seen.
// It is kept in metadata as sorted, comma separated ranges such as "1-4,7".
type trialIDSet map[int64]struct{}

func (s trialIDSet) add(id int64) {
	s[id] = struct{}{}
}

func (s trialIDSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s trialIDSet) String() string {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(ids[i], 10))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.FormatInt(ids[j], 10))
		}
		i = j + 1
	}
	return b.String()
}

func parseTrialIDSet(raw string) (trialIDSet, error) {
	s := trialIDSet{}
	if raw == "" {
		return s, nil
	}
	for _, part := range strings.Split(raw, ",") {
		lo, hi := part, part
		if i := strings.IndexByte(part, '-'); i >= 0 {
			lo, hi = part[:i], part[i+1:]
		}
		first, err := strconv.ParseInt(lo, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad range %q", part)
		}
		last, err := strconv.ParseInt(hi, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad range %q", part)
		}
		if first <= 0 || last < first || last-first >= maxRangeLen {
			return nil, errors.Errorf("bad range %q", part)
		}
		for id := first; id <= last; id++ {
			s.add(id)
		}
	}
	return s, nil
}
