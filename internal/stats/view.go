package stats

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	ErrInvalidSortField = errors.New("invalid sort field: must be email, totalTrips or carbonCredits")
	ErrInvalidDirection = errors.New("invalid sort direction: must be asc or desc")
)

type SortField string

const (
	SortByEmail         SortField = "email"
	SortByTotalTrips    SortField = "totalTrips"
	SortByCarbonCredits SortField = "carbonCredits"
)

func ParseSortField(s string) (SortField, error) {
	switch f := SortField(s); f {
	case SortByEmail, SortByTotalTrips, SortByCarbonCredits:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSortField, s)
	}
}

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Ascending, Descending:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

func (d Direction) Flip() Direction {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// SortState is the table's current sort column and direction.
type SortState struct {
	Field     SortField `json:"field"`
	Direction Direction `json:"direction"`
}

func DefaultSortState() SortState {
	return SortState{Field: SortByEmail, Direction: Ascending}
}

// Select returns the state after clicking field: the same field flips
// direction, a different field sorts ascending.
func (s SortState) Select(field SortField) SortState {
	if field == s.Field {
		return SortState{Field: field, Direction: s.Direction.Flip()}
	}
	return SortState{Field: field, Direction: Ascending}
}

// ViewParams are the user-controlled table parameters.
type ViewParams struct {
	Filter string
	Sort   SortState
}

// Sortable is any row the table can display.
type Sortable interface {
	SortKeys() (identifier string, trips int, credits float64)
}

// ApplyView filters rows by a case-insensitive substring of the identifier and
// stable-sorts the survivors. The input slice is not modified.
func ApplyView[T Sortable](rows []T, params ViewParams) ([]T, error) {
	if _, err := ParseSortField(string(params.Sort.Field)); err != nil {
		return nil, err
	}
	if _, err := ParseDirection(string(params.Sort.Direction)); err != nil {
		return nil, err
	}

	needle := strings.ToLower(params.Filter)
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		id, _, _ := row.SortKeys()
		if strings.Contains(strings.ToLower(id), needle) {
			out = append(out, row)
		}
	}

	coll := collate.New(language.English)
	desc := params.Sort.Direction == Descending
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		aID, aTrips, aCredits := a.SortKeys()
		bID, bTrips, bCredits := b.SortKeys()
		switch params.Sort.Field {
		case SortByTotalTrips:
			return aTrips < bTrips
		case SortByCarbonCredits:
			return aCredits < bCredits
		default:
			return coll.CompareString(aID, bID) < 0
		}
	})
	return out, nil
}
