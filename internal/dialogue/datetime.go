// Package dialogue implements the conversational appointment-booking engine.
//
// This file implements the date/time interpreter: it turns free-form phrases
// ("mañana a las 15:00", "tomorrow at 5pm") or the structured fallback
// format DD-MM-YYYY HH:MM into a concrete instant, then validates that the
// instant is in the future and inside business hours.
package dialogue

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// Default business window: bookings are accepted from OpenHour (inclusive)
// to CloseHour (exclusive), local time.
const (
	DefaultOpenHour  = 10
	DefaultCloseHour = 18
)

// StructuredDateLayout is the strict fallback format, day-month-year order.
const StructuredDateLayout = "02-01-2006 15:04"

var (
	structuredDatePattern = regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`)
	clockPattern          = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
)

// dayOffsets maps relative day words to offsets from the reference date.
var dayOffsets = map[string]int{
	"hoy":      0,
	"today":    0,
	"mañana":   1,
	"manana":   1,
	"tomorrow": 1,
}

// weekdays maps Spanish and English weekday names to time.Weekday.
var weekdays = map[string]time.Weekday{
	"domingo":   time.Sunday,
	"lunes":     time.Monday,
	"martes":    time.Tuesday,
	"miercoles": time.Wednesday,
	"miércoles": time.Wednesday,
	"jueves":    time.Thursday,
	"viernes":   time.Friday,
	"sabado":    time.Saturday,
	"sábado":    time.Saturday,
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// InterpreterOpts holds configuration options for the date interpreter.
type InterpreterOpts struct {
	OpenHour  int
	CloseHour int
	Location  *time.Location
}

// InterpreterOption defines a configuration option for the date interpreter.
type InterpreterOption func(*InterpreterOpts)

// WithBusinessHours sets the accepted local booking window [open, close).
func WithBusinessHours(open, close int) InterpreterOption {
	return func(o *InterpreterOpts) {
		o.OpenHour = open
		o.CloseHour = close
	}
}

// WithLocation sets the local time zone used to resolve phrases and to
// evaluate the business window.
func WithLocation(loc *time.Location) InterpreterOption {
	return func(o *InterpreterOpts) {
		o.Location = loc
	}
}

// Interpreter converts booking request text into a concrete instant.
// It is a pure function of the text, the reference time and its
// configuration; it never touches storage.
type Interpreter struct {
	openHour  int
	closeHour int
	loc       *time.Location
}

// NewInterpreter creates an Interpreter, applying any provided options.
func NewInterpreter(opts ...InterpreterOption) *Interpreter {
	cfg := InterpreterOpts{OpenHour: DefaultOpenHour, CloseHour: DefaultCloseHour, Location: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Interpreter{openHour: cfg.OpenHour, closeHour: cfg.CloseHour, loc: cfg.Location}
}

// OpenHour returns the inclusive lower bound of the business window.
func (i *Interpreter) OpenHour() int { return i.openHour }

// CloseHour returns the exclusive upper bound of the business window.
func (i *Interpreter) CloseHour() int { return i.closeHour }

// Interpret converts text into an instant, resolving relative phrases
// forward from now. It returns models.ErrUnparseableDate when neither the
// natural-language nor the structured parse succeeds, and
// models.ErrNotFuture / models.ErrOutOfHours when the parsed instant fails
// validation.
func (i *Interpreter) Interpret(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	now = now.In(i.loc)

	t, ok := i.parseNatural(text, now)
	if !ok {
		var err error
		t, err = time.ParseInLocation(StructuredDateLayout, text, i.loc)
		if err != nil {
			return time.Time{}, models.ErrUnparseableDate
		}
	}

	if !t.After(now) {
		return time.Time{}, models.ErrNotFuture
	}
	hour := t.In(i.loc).Hour()
	if hour < i.openHour || hour >= i.closeHour {
		return time.Time{}, models.ErrOutOfHours
	}
	return t, nil
}

// parseNatural handles relative day words, weekday names and clock phrases.
// Relative resolution never lands in the past: a bare hour that already
// passed today rolls to tomorrow, and a weekday name picks the next
// occurrence strictly after now.
func (i *Interpreter) parseNatural(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(text)

	// Looks like the structured format; let the strict parser judge it.
	if structuredDatePattern.MatchString(lower) {
		return time.Time{}, false
	}

	hour, minute, ok := findClock(lower)
	if !ok {
		return time.Time{}, false
	}

	base := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, i.loc)

	for word, offset := range dayOffsets {
		if containsWord(lower, word) {
			return base.AddDate(0, 0, offset), true
		}
	}
	for name, wd := range weekdays {
		if containsWord(lower, name) {
			days := int(wd-now.Weekday()+7) % 7
			candidate := base.AddDate(0, 0, days)
			if !candidate.After(now) {
				candidate = candidate.AddDate(0, 0, 7)
			}
			return candidate, true
		}
	}

	// No day word: today if still ahead, otherwise tomorrow.
	if !base.After(now) {
		base = base.AddDate(0, 0, 1)
	}
	return base, true
}

// findClock extracts an hour and minute from a phrase, accepting "15:00",
// "5pm", "a las 5". It returns the first candidate that is a valid
// 24-hour clock value.
func findClock(text string) (hour, minute int, ok bool) {
	for _, m := range clockPattern.FindAllStringSubmatch(text, -1) {
		h, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		min := 0
		if m[2] != "" {
			min, err = strconv.Atoi(m[2])
			if err != nil || min > 59 {
				continue
			}
		}
		switch m[3] {
		case "pm":
			if h < 1 || h > 12 {
				continue
			}
			if h < 12 {
				h += 12
			}
		case "am":
			if h < 1 || h > 12 {
				continue
			}
			if h == 12 {
				h = 0
			}
		default:
			if h > 23 {
				continue
			}
		}
		return h, min, true
	}
	return 0, 0, false
}

// containsWord reports whether text contains word as a whole token.
func containsWord(text, word string) bool {
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '?' || r == '!'
	}) {
		if tok == word {
			return true
		}
	}
	return false
}
