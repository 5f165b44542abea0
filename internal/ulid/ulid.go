// Package ulid wraps github.com/oklog/ulid/v2 with short type prefixes so
// identifiers read like "food-01HQ..." in logs and in the database.
package ulid

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes used by the application
const (
	PrefixFoodEntry   = "food"
	PrefixWeightEntry = "wt"
	PrefixSyncRun     = "run"
	PrefixSetting     = "set"
	PrefixRequest     = "req"

	// PrefixSeparator separates the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// ULID is a ULID with an optional prefix
type ULID struct {
	ulid.ULID
	prefix string
}

// Generate creates a ULID for the current time
func Generate() ULID {
	return NewWithTime(time.Now(), "")
}

// GenerateWithPrefix creates a prefixed ULID for the current time
func GenerateWithPrefix(prefix string) ULID {
	return NewWithTime(time.Now(), prefix)
}

// NewWithTime creates a prefixed ULID for t. IDs created within the same
// millisecond are monotonically increasing.
func NewWithTime(t time.Time, prefix string) ULID {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()
	return ULID{ULID: id, prefix: prefix}
}

// Parse parses "prefix-ULID" or a bare ULID
func Parse(s string) (ULID, error) {
	prefix, raw := "", s
	if i := strings.LastIndex(s, PrefixSeparator); i >= 0 {
		prefix, raw = s[:i], s[i+1:]
	}

	id, err := ulid.Parse(raw)
	if err != nil {
		return ULID{}, fmt.Errorf("parsing ulid %q: %w", s, err)
	}
	return ULID{ULID: id, prefix: prefix}, nil
}

// Validate reports whether s parses as a ULID
func Validate(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Prefix returns the prefix, empty when none
func (u ULID) Prefix() string { return u.prefix }

// IsZero reports whether u is the zero ULID
func (u ULID) IsZero() bool { return u.ULID == (ulid.ULID{}) }

// Time returns the embedded timestamp
func (u ULID) Time() time.Time { return ulid.Time(u.ULID.Time()) }

// String returns "prefix-ULID", or the bare ULID when there is no prefix
func (u ULID) String() string {
	if u.prefix == "" {
		return u.ULID.String()
	}
	return u.prefix + PrefixSeparator + u.ULID.String()
}

// MarshalJSON encodes u as a string
func (u ULID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON decodes u from a string
func (u *ULID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Value stores u as text
func (u ULID) Value() (driver.Value, error) {
	return u.String(), nil
}

// Scan reads u from a text column
func (u *ULID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	case []byte:
		return u.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ULID", src)
	}
}

// FoodEntryID generates an ID for a food entry
func FoodEntryID() string { return GenerateWithPrefix(PrefixFoodEntry).String() }

// WeightEntryID generates an ID for a weight entry
func WeightEntryID() string { return GenerateWithPrefix(PrefixWeightEntry).String() }

// SyncRunID generates an ID for a sync run
func SyncRunID() string { return GenerateWithPrefix(PrefixSyncRun).String() }

// SettingID generates an ID for a settings row
func SettingID() string { return GenerateWithPrefix(PrefixSetting).String() }

// RequestID generates an ID for a remote request
func RequestID() string { return GenerateWithPrefix(PrefixRequest).String() }
