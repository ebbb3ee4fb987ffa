package rooms

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/matheus3301/imsync/internal/model"
)

// Category filters rooms by workflow status.
type Category string

const (
	CategoryAll   Category = "all"
	CategoryOpen  Category = "open"
	CategoryClose Category = "close"
)

// SortKey orders a room view.
type SortKey string

const (
	SortNewest  SortKey = "newest"
	SortAlphaAZ SortKey = "alphaAZ"
	SortAlphaZA SortKey = "alphaZA"
)

// ViewOptions selects and orders a projection of the room list.
type ViewOptions struct {
	Category Category
	Search   string
	Sort     SortKey
	// Locale drives name collation. Empty means language.Und.
	Locale string
}

// View returns the rooms matching opts, sorted. The stored list is not changed.
func (d *Directory) View(opts ViewOptions) []model.Room {
	return Project(d.Rooms(), opts)
}

// Project filters and sorts rooms without touching the input slice.
func Project(rooms []model.Room, opts ViewOptions) []model.Room {
	search := strings.ToLower(strings.TrimSpace(opts.Search))
	out := make([]model.Room, 0, len(rooms))
	for _, r := range rooms {
		switch opts.Category {
		case CategoryOpen, CategoryClose:
			if string(r.Status) != string(opts.Category) {
				continue
			}
		}
		if search != "" && !strings.Contains(strings.ToLower(r.Name), search) {
			continue
		}
		out = append(out, r)
	}

	switch opts.Sort {
	case SortAlphaAZ, SortAlphaZA:
		tag := language.Und
		if opts.Locale != "" {
			if t, err := language.Parse(opts.Locale); err == nil {
				tag = t
			}
		}
		c := collate.New(tag, collate.IgnoreCase)
		desc := opts.Sort == SortAlphaZA
		sort.SliceStable(out, func(i, j int) bool {
			cmp := c.CompareString(out[i].Name, out[j].Name)
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreateTime > out[j].CreateTime
		})
	}
	return out
}
