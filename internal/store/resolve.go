package store

import (
	"fmt"
	"sort"
	"strings"
)

// MinResolvePrefix is the shortest accepted partial id.
const MinResolvePrefix = 2

// Resolve expands a partial short id to the unique matching entity id.
// A partial matches when the full short id starts with it, or when the
// part after the kind prefix does ("abc" matches "f-abc123"). More than
// one match fails with AmbiguousIDError listing the candidates.
func (s *Store) Resolve(partial string) (string, error) {
	partial = strings.TrimSpace(partial)
	if len(partial) < MinResolvePrefix {
		return "", &ValidationError{Field: "id", Message: fmt.Sprintf("prefix %q too short, need at least %d characters", partial, MinResolvePrefix)}
	}

	var candidates []string
	for _, table := range []string{"tasks", "epics", "reviews"} {
		rows, err := s.db.Query(
			`SELECT short_id FROM `+table+` WHERE short_id LIKE ? ESCAPE '\' OR substr(short_id, 3) LIKE ? ESCAPE '\' ORDER BY short_id`,
			likePrefix(partial), likePrefix(partial),
		)
		if err != nil {
			return "", fmt.Errorf("resolve in %s: %w", table, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return "", fmt.Errorf("scan id: %w", err)
			}
			candidates = append(candidates, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return "", err
		}
		rows.Close()
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("id %q: %w", partial, ErrNotFound)
	case 1:
		return candidates[0], nil
	default:
		sort.Strings(candidates)
		return "", &AmbiguousIDError{Partial: partial, Candidates: candidates}
	}
}

// likePrefix escapes LIKE metacharacters so a partial is always treated
// as a literal prefix.
func likePrefix(p string) string {
	p = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(p)
	return p + "%"
}
