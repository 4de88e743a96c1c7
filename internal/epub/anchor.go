package epub

import (
	"fmt"
	"strconv"
	"strings"
)

// Anchor identifies a location in reflowable content: a spine item, a
// paragraph within it, and a rune offset into the paragraph. Anchors are
// stable across relayouts (font-size changes) because they point into the
// content, not into any particular pagination. Their string form is the
// opaque token stored in positions and annotations.
type Anchor struct {
	Spine  int
	Para   int
	Offset int
}

// Token renders the anchor as its opaque string form.
func (a Anchor) Token() string {
	return fmt.Sprintf("%d/%d/%d", a.Spine, a.Para, a.Offset)
}

// Less orders anchors by reading order.
func (a Anchor) Less(other Anchor) bool {
	if a.Spine != other.Spine {
		return a.Spine < other.Spine
	}
	if a.Para != other.Para {
		return a.Para < other.Para
	}
	return a.Offset < other.Offset
}

// ParseAnchor parses the token form back into an anchor.
func ParseAnchor(token string) (Anchor, error) {
	parts := strings.Split(token, "/")
	if len(parts) != 3 {
		return Anchor{}, fmt.Errorf("malformed anchor token %q", token)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Anchor{}, fmt.Errorf("malformed anchor token %q", token)
		}
		nums[i] = n
	}
	return Anchor{Spine: nums[0], Para: nums[1], Offset: nums[2]}, nil
}
