package recipe

import "time"

// Stats reports how the most recent All() call behaved: how many rows
// came back, how long the database took, how long enchanting the rows
// took, and whether the result was served from the Recipe's own
// not-dirty cache instead of hitting the session at all (spec §7/§8
// invariant 7, "dbtime/enchanttime/fromCache").
//
// Stats read before All() has ever run are the zero value, with Ready
// false; reading them early raises no error.
type Stats struct {
	rows        int
	dbtime      time.Duration
	enchanttime time.Duration
	fromCache   bool
	ready       bool
}

func (s *Stats) set(rows int, dbtime, enchanttime time.Duration, fromCache bool) {
	s.rows = rows
	s.dbtime = dbtime
	s.enchanttime = enchanttime
	s.fromCache = fromCache
	s.ready = true
}

// Ready reports whether All() has run at least once.
func (s Stats) Ready() bool { return s.ready }

// Rows is the number of rows the last All() call returned.
func (s Stats) Rows() int { return s.rows }

// DBTime is how long the session took to execute the query.
func (s Stats) DBTime() time.Duration { return s.dbtime }

// EnchantTime is how long enchanting (formatter/lookup post-processing)
// the rows took.
func (s Stats) EnchantTime() time.Duration { return s.enchanttime }

// FromCache reports whether the last All() call served its rows from
// the Recipe's not-dirty cache rather than executing against the
// session.
func (s Stats) FromCache() bool { return s.fromCache }
