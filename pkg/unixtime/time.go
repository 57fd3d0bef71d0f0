// Package unixtime is used to use unix timestamps in the external API and the
// persisted JSON files, while the internal Go code can still use time.Time
package unixtime

import (
	"strconv"
	"time"
)

type Time time.Time

func Now() Time {
	return Time(time.Now())
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(time.Time(t).Unix(), 10)), nil
}

func (t *Time) UnmarshalJSON(s []byte) (err error) {
	r := string(s)
	q, err := strconv.ParseInt(r, 10, 64)
	if err != nil {
		return err
	}
	*(*time.Time)(t) = time.Unix(q, 0)
	return nil
}

func (t Time) Time() time.Time {
	return time.Time(t).UTC()
}
