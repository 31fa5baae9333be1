package cartmeta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// MaxValueLen is the gateway's per-value character limit.
	MaxValueLen = 500
	// DefaultMaxSlots is how many cart_data keys are provisioned.
	DefaultMaxSlots = 2
	// FormatVersion marks slots holding self-contained arrays.
	FormatVersion = "2"

	KeyVersion = "cart_v"
	KeyRef     = "cart_ref"
	keyData    = "cart_data"
)

var (
	// ErrTooLarge is returned when entries cannot fit the provisioned slots.
	ErrTooLarge = errors.New("cart too large for transaction metadata")
	// ErrNoCart is returned when metadata carries no cart.
	ErrNoCart = errors.New("metadata does not contain a cart")
	// ErrCorrupt is returned when the recorded cart cannot be parsed back
	// into line items.
	ErrCorrupt = errors.New("cart metadata is corrupt")
)

// SlotKey returns the metadata key for slot n (zero based).
func SlotKey(n int) string {
	if n == 0 {
		return keyData
	}
	return fmt.Sprintf("%s_%d", keyData, n+1)
}

// Pack splits entries into at most maxSlots JSON arrays, each at most
// MaxValueLen characters. Slots never split an entry.
func Pack(entries []Entry, maxSlots int) ([]string, error) {
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	var (
		slots   []string
		current []string
		size    = 2 // brackets
	)
	flush := func() {
		slots = append(slots, "["+strings.Join(current, ",")+"]")
		current = nil
		size = 2
	}
	for _, e := range entries {
		encoded, err := marshal(e)
		if err != nil {
			return nil, err
		}
		n := utf8.RuneCountInString(encoded)
		if n+2 > MaxValueLen {
			return nil, fmt.Errorf("entry %d is %d characters: %w", e.I, n, ErrTooLarge)
		}
		sep := 0
		if len(current) > 0 {
			sep = 1
		}
		if size+sep+n > MaxValueLen {
			flush()
			sep = 0
		}
		current = append(current, encoded)
		size += sep + n
	}
	if len(current) > 0 || len(slots) == 0 {
		flush()
	}
	if len(slots) > maxSlots {
		return nil, fmt.Errorf("%d slots needed, %d available: %w", len(slots), maxSlots, ErrTooLarge)
	}
	return slots, nil
}

// Unpack reads entries from metadata slots. Slots written with FormatVersion
// are parsed one by one; older metadata is joined before a single parse
// because its slots were cut at arbitrary character offsets.
func Unpack(metadata map[string]string) ([]Entry, error) {
	var raw []string
	for n := 0; ; n++ {
		value, ok := metadata[SlotKey(n)]
		if !ok || value == "" {
			break
		}
		raw = append(raw, value)
	}
	if len(raw) == 0 {
		return nil, ErrNoCart
	}
	var entries []Entry
	if metadata[KeyVersion] == "" {
		if err := json.Unmarshal([]byte(strings.Join(raw, "")), &entries); err != nil {
			return nil, fmt.Errorf("decode legacy cart slots: %v: %w", err, ErrCorrupt)
		}
	} else {
		for n, slot := range raw {
			var part []Entry
			if err := json.Unmarshal([]byte(slot), &part); err != nil {
				return nil, fmt.Errorf("decode %s: %v: %w", SlotKey(n), err, ErrCorrupt)
			}
			entries = append(entries, part...)
		}
	}
	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].I < entries[b].I })
}

func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
