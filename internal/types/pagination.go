package types

// PageInfo describes a keyset page. NextCursor is the last id returned and is
// empty on the final page.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}
