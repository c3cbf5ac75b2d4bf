package oidc

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/zitadel/schema"
	"golang.org/x/text/language"
)

type Locales []language.Tag

func (l *Locales) UnmarshalText(text []byte) error {
	locales := strings.Split(string(text), " ")
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err == nil && !tag.IsRoot() {
			*l = append(*l, tag)
		}
	}
	return nil
}

// String returns the space delimited BCP47 tags, as used by `ui_locales`.
func (l Locales) String() string {
	tags := make([]string, 0, len(l))
	for _, tag := range l {
		if tag.IsRoot() {
			continue
		}
		tags = append(tags, tag.String())
	}
	return strings.Join(tags, " ")
}

// Time is a unix seconds timestamp on the wire.
type Time int64

func FromTime(tt time.Time) Time {
	if tt.IsZero() {
		return 0
	}
	return Time(tt.Unix())
}

func (ts Time) AsTime() time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0)
}

// RFC3339Time is a timestamp encoded as RFC 3339 string,
// used by the JSON APIs that are not part of OAuth.
type RFC3339Time time.Time

func (t *RFC3339Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = RFC3339Time(parsed)
	return nil
}

func (t RFC3339Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

// NewEncoder returns a schema Encoder with
// the custom encoders of this package registered.
func NewEncoder() *schema.Encoder {
	e := schema.NewEncoder()
	e.RegisterEncoder(Locales{}, func(value reflect.Value) string {
		return value.Interface().(Locales).String()
	})
	return e
}
