package domain

import (
	"fmt"
	"reflect"
	"time"
)

// Metadata is the opaque track description returned by a player.
// Values are already unwrapped from their bus variants.
type Metadata map[string]any

// Well-known metadata keys
const (
	MetaTrackID = "mpris:trackid"
	MetaLength  = "mpris:length"
	MetaArtURL  = "mpris:artUrl"
	MetaTitle   = "xesam:title"
	MetaAlbum   = "xesam:album"
	MetaArtist  = "xesam:artist"
)

// Title returns xesam:title, or "" when absent
func (m Metadata) Title() (string, error) {
	return m.str(MetaTitle)
}

// Album returns xesam:album, or "" when absent
func (m Metadata) Album() (string, error) {
	return m.str(MetaAlbum)
}

// ArtURL returns mpris:artUrl, or "" when absent
func (m Metadata) ArtURL() (string, error) {
	return m.str(MetaArtURL)
}

// TrackID returns mpris:trackid. Players send either a string or an object path.
func (m Metadata) TrackID() (string, error) {
	v, ok := m[MetaTrackID]
	if !ok {
		return "", nil
	}
	switch id := v.(type) {
	case string:
		return id, nil
	}
	// dbus.ObjectPath and other named string types
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", fieldTypeError(MetaTrackID, "s or o", v)
}

// Artists returns xesam:artist. Non-compliant players sending a plain string are accepted.
func (m Metadata) Artists() ([]string, error) {
	v, ok := m[MetaArtist]
	if !ok {
		return nil, nil
	}
	switch artists := v.(type) {
	case []string:
		return artists, nil
	case string:
		return []string{artists}, nil
	}
	return nil, fieldTypeError(MetaArtist, "as", v)
}

// Length returns mpris:length. The second value is false when the player did not report one.
func (m Metadata) Length() (time.Duration, bool, error) {
	v, ok := m[MetaLength]
	if !ok {
		return 0, false, nil
	}
	var us int64
	switch n := v.(type) {
	case int64:
		us = n
	case uint64:
		us = int64(n)
	case int32:
		us = int64(n)
	case uint32:
		us = int64(n)
	case float64:
		// some browsers
		us = int64(n)
	default:
		return 0, false, fieldTypeError(MetaLength, "x", v)
	}
	if us <= 0 {
		return 0, false, nil
	}
	return time.Duration(us) * time.Microsecond, true, nil
}

func (m Metadata) str(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldTypeError(key, "s", v)
	}
	return s, nil
}

func fieldTypeError(field, expected string, got any) error {
	return fmt.Errorf("%w: field %s expected %s, got %T", ErrMetadataFieldType, field, expected, got)
}
