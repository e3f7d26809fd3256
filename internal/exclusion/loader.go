// Package exclusion builds the set of identity keys a run must not
// contact again: everything already saved for the account plus the
// team's do-not-contact list.
package exclusion

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

// ContactKeyLister is the slice of the store the loader needs.
type ContactKeyLister interface {
	ListContactKeys(ctx context.Context, accountID string) (map[string]struct{}, error)
}

// Set is an immutable snapshot of excluded identity keys, taken once at
// the start of a run. Contacts saved mid-run do not join the snapshot.
type Set struct {
	keys map[string]struct{}
}

// NewSet builds a Set from pre-computed identity keys.
func NewSet(keys map[string]struct{}) *Set {
	if keys == nil {
		keys = map[string]struct{}{}
	}
	return &Set{keys: keys}
}

// Contains reports whether the key is excluded.
func (s *Set) Contains(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Len returns the number of excluded keys.
func (s *Set) Len() int {
	return len(s.keys)
}

// Loader assembles exclusion sets. The Notion source is optional; when
// unset only previously saved contacts are excluded.
type Loader struct {
	store         ContactKeyLister
	notion        notion.Client
	suppressionDB string
}

// NewLoader creates a Loader. Pass a nil notion client to skip the
// suppression list source.
func NewLoader(st ContactKeyLister, nc notion.Client, suppressionDB string) *Loader {
	return &Loader{store: st, notion: nc, suppressionDB: suppressionDB}
}

// Load builds the exclusion snapshot for an account. Source failures
// never abort the run: a failed source contributes nothing and the
// failure is surfaced as a warning, so a fresh account or an offline
// suppression list degrades to fewer exclusions, not an error.
func (l *Loader) Load(ctx context.Context, accountID string) (*Set, []model.Warning) {
	var warnings []model.Warning
	keys := map[string]struct{}{}

	saved, err := l.store.ListContactKeys(ctx, accountID)
	if err != nil {
		zap.L().Warn("exclusion: saved contacts unavailable",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		warnings = append(warnings, model.Warning{
			Stage:   "exclusion",
			Message: fmt.Sprintf("saved contacts unavailable: %v", err),
		})
	} else {
		for k := range saved {
			keys[k] = struct{}{}
		}
	}

	if l.notion != nil && l.suppressionDB != "" {
		entries, err := notion.QuerySuppressionList(ctx, l.notion, l.suppressionDB)
		if err != nil {
			zap.L().Warn("exclusion: suppression list unavailable",
				zap.String("database", l.suppressionDB),
				zap.Error(err),
			)
			warnings = append(warnings, model.Warning{
				Stage:   "exclusion",
				Message: fmt.Sprintf("suppression list unavailable: %v", err),
			})
		} else {
			for _, e := range entries {
				rec := model.CandidateRecord{
					FirstName:    e.FirstName,
					LastName:     e.LastName,
					Organization: e.Organization,
					RawEmail:     e.Email,
				}
				if key, ok := identity.Key(rec); ok {
					keys[key] = struct{}{}
				}
			}
		}
	}

	zap.L().Debug("exclusion: snapshot built",
		zap.String("account_id", accountID),
		zap.Int("keys", len(keys)),
	)
	return NewSet(keys), warnings
}
