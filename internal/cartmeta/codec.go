package cartmeta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/backend-tours/internal/cart"
)

// OverflowStore keeps carts that do not fit in metadata slots.
type OverflowStore interface {
	Put(ctx context.Context, payload []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Codec moves carts in and out of transaction metadata.
type Codec struct {
	MaxSlots int
	Overflow OverflowStore
}

// Encode returns the metadata keys describing items. Carts larger than the
// slots go to the overflow store; without one ErrTooLarge is returned.
func (c Codec) Encode(ctx context.Context, items []cart.LineItem) (map[string]string, error) {
	entries := FromItems(items)
	out := map[string]string{KeyVersion: FormatVersion}
	slots, err := Pack(entries, c.maxSlots())
	if err == nil {
		for n, slot := range slots {
			out[SlotKey(n)] = slot
		}
		return out, nil
	}
	if !errors.Is(err, ErrTooLarge) || c.Overflow == nil {
		return nil, err
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode overflow cart: %w", err)
	}
	ref, err := c.Overflow.Put(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("store overflow cart: %w", err)
	}
	out[KeyRef] = ref
	return out, nil
}

// Decode rebuilds the line items recorded in metadata.
func (c Codec) Decode(ctx context.Context, metadata map[string]string) ([]cart.LineItem, error) {
	entries, err := c.entries(ctx, metadata)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoCart
	}
	items, err := ToItems(entries)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrCorrupt)
	}
	return items, nil
}

// Unrecoverable reports whether err means the cart recorded in metadata is
// gone for good, as opposed to a store that is briefly unreachable.
func Unrecoverable(err error) bool {
	return errors.Is(err, ErrCorrupt) || errors.Is(err, ErrOverflowMissing)
}

func (c Codec) entries(ctx context.Context, metadata map[string]string) ([]Entry, error) {
	ref := metadata[KeyRef]
	if ref == "" {
		return Unpack(metadata)
	}
	if c.Overflow == nil {
		return nil, fmt.Errorf("cart %s stored externally but no overflow store configured", ref)
	}
	payload, err := c.Overflow.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load overflow cart %s: %w", ref, err)
	}
	var entries []Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("decode overflow cart %s: %v: %w", ref, err, ErrCorrupt)
	}
	sortEntries(entries)
	return entries, nil
}

func (c Codec) maxSlots() int {
	if c.MaxSlots <= 0 {
		return DefaultMaxSlots
	}
	return c.MaxSlots
}

// SlotCount reports how many cart_data slots metadata uses.
func SlotCount(metadata map[string]string) int {
	n := 0
	for metadata[SlotKey(n)] != "" {
		n++
	}
	return n
}
