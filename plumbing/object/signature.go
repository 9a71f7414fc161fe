package object

import (
	"fmt"
	"strconv"
	"time"
)

// Signature represents an action signed by a person at a point in time.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// ParseSignature parses the "Name <email> unix-seconds timezone" form
// used by commit author and committer headers. Fields that cannot be
// parsed are left at their zero value; the boolean reports whether a
// timestamp was found.
func ParseSignature(signature []byte) (Signature, bool) {
	ret := Signature{}
	if len(signature) == 0 {
		return ret, false
	}

	from := 0
	state := 'n' // n: name, e: email, t: timestamp, z: timezone
	var hasWhen bool
	var when int64
	for i := 0; ; i++ {
		var c byte
		var end bool
		if i < len(signature) {
			c = signature[i]
		} else {
			end = true
		}

		switch state {
		case 'n':
			if c == '<' || end {
				if i > 0 {
					ret.Name = string(signature[from : i-1])
				}
				state = 'e'
				from = i + 1
			}
		case 'e':
			if c == '>' || end {
				ret.Email = string(signature[from:i])
				i++
				state = 't'
				from = i + 1
			}
		case 't':
			if c == ' ' || end {
				t, err := strconv.ParseInt(string(signature[from:i]), 10, 64)
				if err == nil {
					when = t
					hasWhen = true
				}
				state = 'z'
				from = i + 1
			}
		case 'z':
			if end && hasWhen {
				ret.When = time.Unix(when, 0).In(parseTimeZone(signature[from:i]))
			}
		}

		if end {
			break
		}
	}

	if !hasWhen {
		return ret, false
	}
	return ret, true
}

// parseTimeZone parses a "+hhmm" / "-hhmm" offset, falling back to UTC
// for anything malformed.
func parseTimeZone(tz []byte) *time.Location {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return time.UTC
	}

	hh, err1 := strconv.Atoi(string(tz[1:3]))
	mm, err2 := strconv.Atoi(string(tz[3:5]))
	if err1 != nil || err2 != nil {
		return time.UTC
	}

	offset := (hh*60 + mm) * 60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(string(tz), offset)
}

func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> @ %s", s.Name, s.Email, s.When)
}
