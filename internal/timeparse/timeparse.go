// Package timeparse turns user-typed dates into instants: exact layouts
// (RFC 3339, 2006-01-02, dd/MM/yy) and natural language in English and
// Russian ("yesterday", "2 weeks ago", "вчера").
package timeparse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/olebedev/when/rules/ru"
)

// dateLayouts name a whole day rather than an instant.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/06",
	"02/01/2006",
}

// Parser parses dates relative to a reference time. It is safe for
// concurrent use once built.
type Parser struct {
	w *when.Parser
}

// New returns a Parser with English, Russian and common rules loaded.
func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(ru.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

// Parse returns the instant text refers to, in UTC. Whole-day forms resolve
// to the start of that day.
func (p *Parser) Parse(text string, now time.Time) (time.Time, error) {
	t, _, err := p.parse(text, now)
	return t, err
}

// ParseSince parses a lower bound. Whole-day forms mean the start of the day.
func (p *Parser) ParseSince(text string, now time.Time) (time.Time, error) {
	return p.Parse(text, now)
}

// ParseUntil parses an inclusive upper bound. Whole-day forms mean the last
// millisecond of the day.
func (p *Parser) ParseUntil(text string, now time.Time) (time.Time, error) {
	t, wholeDay, err := p.parse(text, now)
	if err != nil {
		return time.Time{}, err
	}
	if wholeDay {
		t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return t, nil
}

func (p *Parser) parse(text string, now time.Time) (time.Time, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false, fmt.Errorf("empty date")
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC(), false, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t, true, nil
		}
	}

	switch strings.ToLower(text) {
	case "now":
		return now.UTC(), false, nil
	case "today", "сегодня":
		return startOfDay(now), true, nil
	}

	r, err := p.w.Parse(text, now)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, false, fmt.Errorf("unrecognized date %q", text)
	}
	// "yesterday", "2 weeks ago" and weekdays keep the reference clock time;
	// they name a day, not an instant.
	if sameClock(r.Time, now) && !timeOfDay.MatchString(strings.ToLower(r.Text)) {
		return startOfDay(r.Time), true, nil
	}
	return r.Time.UTC(), false, nil
}

// timeOfDay matches expressions that resolve below day granularity even when
// the clock happens to be unchanged ("24 hours ago").
var timeOfDay = regexp.MustCompile(`hour|minute|second|\bhrs?\b|\bmins?\b|\bsecs?\b|noon|midnight|час|минут|секунд|полдень|полночь|\d:\d|\d\s*[ap]\.?m\b`)

func sameClock(t, ref time.Time) bool {
	t = t.In(ref.Location())
	h1, m1, s1 := t.Clock()
	h2, m2, s2 := ref.Clock()
	return h1 == h2 && m1 == m2 && s1 == s2 && t.Nanosecond() == ref.Nanosecond()
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
