package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// LinkPreviewKind enumerates the link-preview variants.
type LinkPreviewKind uint8

const (
	// LinkPreviewOff disables previews for delivered items.
	LinkPreviewOff LinkPreviewKind = iota
	// LinkPreviewOn enables the generic preview.
	LinkPreviewOn
	// LinkPreviewInstantView enables an instant-view preview rendered
	// with a specific template hash.
	LinkPreviewInstantView
)

// LinkPreview is the per-(subscriber, feed) preview preference. The zero
// value is "off". Values are comparable with ==.
type LinkPreview struct {
	Kind LinkPreviewKind
	// IVRHash is the instant-view render hash; meaningful only when
	// Kind is LinkPreviewInstantView.
	IVRHash uint64
}

// InstantView returns a preview preference for the given render hash.
func InstantView(rhash uint64) LinkPreview {
	return LinkPreview{Kind: LinkPreviewInstantView, IVRHash: rhash}
}

// LinkPreviewFromRHash decodes the compact render-hash encoding used by
// subscription commands: zero means off, the maximum value means the
// generic preview, anything else is an instant-view render hash.
func LinkPreviewFromRHash(rhash uint64) LinkPreview {
	switch rhash {
	case 0:
		return LinkPreview{Kind: LinkPreviewOff}
	case math.MaxUint64:
		return LinkPreview{Kind: LinkPreviewOn}
	default:
		return InstantView(rhash)
	}
}

// String renders the preference for logs and CLI output.
func (p LinkPreview) String() string {
	switch p.Kind {
	case LinkPreviewOff:
		return "off"
	case LinkPreviewOn:
		return "on"
	case LinkPreviewInstantView:
		return fmt.Sprintf("instant-view(%x)", p.IVRHash)
	default:
		return fmt.Sprintf("unknown(%d)", p.Kind)
	}
}

type instantViewJSON struct {
	IVRHash uint64 `json:"iv"`
}

// MarshalJSON serializes the variant as "off", "on", or {"iv": rhash}.
func (p LinkPreview) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case LinkPreviewOff:
		return json.Marshal("off")
	case LinkPreviewOn:
		return json.Marshal("on")
	case LinkPreviewInstantView:
		return json.Marshal(instantViewJSON{IVRHash: p.IVRHash})
	default:
		return nil, fmt.Errorf("marshal link preview: unknown kind %d", p.Kind)
	}
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (p *LinkPreview) UnmarshalJSON(data []byte) error {
	var kind string
	if err := json.Unmarshal(data, &kind); err == nil {
		switch kind {
		case "off":
			*p = LinkPreview{Kind: LinkPreviewOff}
			return nil
		case "on":
			*p = LinkPreview{Kind: LinkPreviewOn}
			return nil
		default:
			return fmt.Errorf("unmarshal link preview: unknown variant %q", kind)
		}
	}
	var iv instantViewJSON
	if err := json.Unmarshal(data, &iv); err != nil {
		return fmt.Errorf("unmarshal link preview: %w", err)
	}
	*p = InstantView(iv.IVRHash)
	return nil
}
