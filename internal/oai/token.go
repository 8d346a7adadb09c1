package oai

import (
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

const dayLayout = "2006-01-02"

// resumption is the state carried by a resumption token. Tokens are
// self-contained so the engine keeps no session state between requests.
type resumption struct {
	Prefix string
	Set    string
	From   string
	Until  string
	Cursor int
}

func (r resumption) encode() string {
	v := url.Values{}
	v.Set("p", r.Prefix)
	v.Set("c", strconv.Itoa(r.Cursor))
	if r.Set != "" {
		v.Set("s", r.Set)
	}
	if r.From != "" {
		v.Set("f", r.From)
	}
	if r.Until != "" {
		v.Set("u", r.Until)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(v.Encode()))
}

func decodeResumption(token string) (resumption, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return resumption{}, ErrBadResumptionToken(token)
	}
	v, err := url.ParseQuery(string(raw))
	if err != nil {
		return resumption{}, ErrBadResumptionToken(token)
	}
	cursor, err := strconv.Atoi(v.Get("c"))
	if err != nil || cursor < 0 || v.Get("p") == "" {
		return resumption{}, ErrBadResumptionToken(token)
	}
	return resumption{
		Prefix: v.Get("p"),
		Set:    v.Get("s"),
		From:   v.Get("f"),
		Until:  v.Get("u"),
		Cursor: cursor,
	}, nil
}

// parseDatestamp accepts day or seconds granularity and reports which
// one was used.
func parseDatestamp(s string) (t time.Time, day bool, err error) {
	if t, err = time.Parse(datestampLayout, s); err == nil {
		return t, false, nil
	}
	if t, err = time.Parse(dayLayout, s); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, ErrBadArgument("malformed datestamp %q", s)
}

// parseRange validates a from/until pair. A day-granularity until covers
// the whole day.
func parseRange(from, until string) (*time.Time, *time.Time, error) {
	var (
		f, u          *time.Time
		fromDay, uDay bool
	)
	if from != "" {
		t, day, err := parseDatestamp(from)
		if err != nil {
			return nil, nil, err
		}
		f, fromDay = &t, day
	}
	if until != "" {
		t, day, err := parseDatestamp(until)
		if err != nil {
			return nil, nil, err
		}
		if day {
			t = now.New(t).EndOfDay()
		}
		u, uDay = &t, day
	}
	if f != nil && u != nil {
		if fromDay != uDay {
			return nil, nil, ErrBadArgument("from and until must have the same granularity")
		}
		if f.After(*u) {
			return nil, nil, ErrBadArgument("from %q is after until %q", from, until)
		}
	}
	return f, u, nil
}
