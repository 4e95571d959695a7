package inventory

import (
	"strings"

	"case-tracker/internal/services/steam"
)

// OwnedItem is one priceable inventory entry after normalization.
type OwnedItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IconHash string `json:"icon_hash"`
	Count    uint   `json:"count"`
}

// Normalize turns a raw inventory payload into a deduplicated list of
// priceable items with ownership counts.
//
// Descriptions are filtered to marketable entries whose name contains the
// marker (first occurrence of a class id wins), then the asset list is folded
// into per-class counts. Counts attach only to items that survived the
// filter. An empty result means there is nothing to price; callers must not
// treat it as retryable.
func Normalize(inv *steam.Inventory, marker string) []OwnedItem {
	index := make(map[string]int)
	var items []OwnedItem

	for _, desc := range inv.Descriptions {
		if desc.Marketable == 0 || !strings.Contains(desc.Name, marker) {
			continue
		}
		if _, seen := index[desc.ClassID]; seen {
			continue
		}
		index[desc.ClassID] = len(items)
		items = append(items, OwnedItem{
			ID:       desc.ClassID,
			Name:     desc.Name,
			IconHash: desc.IconURL,
		})
	}

	for _, asset := range inv.Assets {
		if i, ok := index[asset.ClassID]; ok {
			items[i].Count++
		}
	}

	return items
}
