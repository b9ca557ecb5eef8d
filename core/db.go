package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops orderings on fields that are not in `allowed`.
// Fields end up in raw ORDER BY clauses, so only known column names may pass.
func FilterOrderings(ords []DBOrdering, allowed ...string) []DBOrdering {
	if len(ords) == 0 {
		return nil
	}
	res := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		field := strings.ToLower(strings.TrimSpace(ord.Field))
		for _, a := range allowed {
			if field == a {
				res = append(res, DBOrdering{Field: field, Ascending: ord.Ascending})
				break
			}
		}
	}
	return res
}
