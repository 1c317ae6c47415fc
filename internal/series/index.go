package series

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"DormWatch/internal/model"
)

var periodFilePattern = regexp.MustCompile(`^\d{4}-\d{2}\.json$`)

// scanPeriods lists the period keys of every period file in dir, most recent
// first. Names that look like period files but are not valid year-months are
// returned in skipped.
func scanPeriods(dir string) (periods, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	type keyed struct {
		key string
		at  time.Time
	}
	var found []keyed
	for _, e := range entries {
		if e.IsDir() || !periodFilePattern.MatchString(e.Name()) {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		at, err := time.Parse(model.PeriodLayout, key)
		if err != nil {
			skipped = append(skipped, e.Name())
			continue
		}
		found = append(found, keyed{key: key, at: at})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].at.After(found[j].at) })
	periods = make([]string, len(found))
	for i, k := range found {
		periods[i] = k.key
	}
	return periods, skipped, nil
}

// precedingPeriod returns the most recent period in index (sorted descending)
// strictly older than period.
func precedingPeriod(index []string, period string) (string, bool) {
	cur, err := time.Parse(model.PeriodLayout, period)
	if err != nil {
		return "", false
	}
	for _, key := range index {
		at, err := time.Parse(model.PeriodLayout, key)
		if err != nil {
			continue
		}
		if at.Before(cur) {
			return key, true
		}
	}
	return "", false
}
