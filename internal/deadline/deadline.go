// Package deadline extracts application deadlines from notice titles.
package deadline

import (
	"regexp"
	"strconv"
	"time"
	"unicode"
)

var (
	// 2026.02.14, 2026-02-14, 2026/2/14
	fullDate = regexp.MustCompile(`(\d{4})[.\-/](\d{1,2})[.\-/](\d{1,2})`)
	// 2.14, 2월 14일, 2월14일
	monthDay = regexp.MustCompile(`(\d{1,2})[.월]\s?(\d{1,2})[.일]?`)
)

// Scanned in this order; only the first occurrence of each keyword is used.
var keywords = []string{"까지", "마감", "이내", "until", "deadline", "within"}

// window is the number of runes before a keyword searched for a date.
const window = 40

// Extract returns the deadline stated in title. Dates right before a deadline
// keyword win; otherwise the rightmost date in the title is used, since ranges
// list the end date last. refYear completes month-day dates.
func Extract(title string, refYear int) (time.Time, bool) {
	runes := []rune(title)
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	for _, kw := range keywords {
		pos := index(lower, []rune(kw))
		if pos < 0 {
			continue
		}
		region := string(runes[max(0, pos-window):pos])
		if d, ok := firstDate(fullDate, region, refYear); ok {
			return d, true
		}
		if d, ok := firstDate(monthDay, region, refYear); ok {
			return d, true
		}
	}

	if d, ok := lastDate(fullDate, title, refYear); ok {
		return d, true
	}
	return lastDate(monthDay, title, refYear)
}

func firstDate(re *regexp.Regexp, s string, refYear int) (time.Time, bool) {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if d, ok := toDate(m, refYear); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func lastDate(re *regexp.Regexp, s string, refYear int) (time.Time, bool) {
	var (
		last  time.Time
		found bool
	)
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if d, ok := toDate(m, refYear); ok {
			last, found = d, true
		}
	}
	return last, found
}

// toDate converts a match of either grammar. Full dates have three groups.
func toDate(m []string, refYear int) (time.Time, bool) {
	nums := make([]int, 0, 3)
	for _, g := range m[1:] {
		n, err := strconv.Atoi(g)
		if err != nil {
			return time.Time{}, false
		}
		nums = append(nums, n)
	}
	year, month, day := refYear, nums[0], nums[1]
	if len(nums) == 3 {
		year, month, day = nums[0], nums[1], nums[2]
	}
	return validDate(year, month, day)
}

func validDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func index(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
