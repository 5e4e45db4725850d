package gdelt

import (
	"database/sql"
	"log/slog"
	"time"
)

// EventRecord is one normalized observation: the row's scalar fields plus the
// three location roles resolved to geo_tags surrogate identifiers.
type EventRecord struct {
	Date        time.Time
	SourceCode  string
	TargetCode  string
	CameoCode   string
	NumEvents   int32
	NumArts     int32
	QuadClass   int32
	Goldstein   float64
	SourceGeoID sql.NullInt64
	TargetGeoID sql.NullInt64
	ActionGeoID sql.NullInt64
}

// NormalizerStats counts the outcomes of a normalization pass. Rejections are
// not errors: rows failing the acceptance filters are dropped and counted,
// never surfaced as failures.
type NormalizerStats struct {
	Accepted        int64
	RejectedCode    int64
	RejectedEntity  int64
	GeoLookupMisses int64
}

// Normalizer filters raw feed rows against an immutable snapshot of accepted
// entity codes and resolves their location triples through the lookup index.
type Normalizer struct {
	log      *slog.Logger
	entities map[string]struct{}
	index    GeoKeyIndex
	stats    NormalizerStats
}

// NewNormalizer builds a normalizer over the given entity-code snapshot and
// lookup index. The snapshot is copied, so later mutation of entityCodes does
// not leak into the filter.
func NewNormalizer(log *slog.Logger, entityCodes []string, index GeoKeyIndex) *Normalizer {
	entities := make(map[string]struct{}, len(entityCodes))
	for _, code := range entityCodes {
		entities[code] = struct{}{}
	}
	return &Normalizer{
		log:      log,
		entities: entities,
		index:    index,
	}
}

// Normalize converts one raw row into an EventRecord. The second return is
// false when the row is rejected: a CAMEO sentinel code, or a source or
// target code absent from the accepted entity set. The filter predicate is
// stable, so re-normalizing an accepted record's source row always accepts it
// again.
func (n *Normalizer) Normalize(row *RawRow) (*EventRecord, bool) {
	if row.CameoCode == CameoNullSentinel {
		n.stats.RejectedCode++
		return nil, false
	}
	if !n.acceptedEntity(row.SourceCode) || !n.acceptedEntity(row.TargetCode) {
		n.stats.RejectedEntity++
		return nil, false
	}

	record := &EventRecord{
		Date:        row.Date,
		SourceCode:  row.SourceCode,
		TargetCode:  row.TargetCode,
		CameoCode:   row.CameoCode,
		NumEvents:   row.NumEvents,
		NumArts:     row.NumArts,
		QuadClass:   row.QuadClass,
		Goldstein:   row.Goldstein,
		SourceGeoID: n.resolveGeo(row.SourceGeo, row.Line, "source"),
		TargetGeoID: n.resolveGeo(row.TargetGeo, row.Line, "target"),
		ActionGeoID: n.resolveGeo(row.ActionGeo, row.Line, "action"),
	}
	n.stats.Accepted++
	return record, true
}

// Stats returns the counters accumulated so far.
func (n *Normalizer) Stats() NormalizerStats {
	return n.stats
}

func (n *Normalizer) acceptedEntity(code string) bool {
	_, ok := n.entities[code]
	return ok
}

// resolveGeo maps a location triple to its surrogate identifier. A nil triple
// resolves to null. So does an index miss, which cannot happen when the index
// was built from the same feed, but is logged as a data-quality note rather
// than raised.
func (n *Normalizer) resolveGeo(key *GeoKey, line int, role string) sql.NullInt64 {
	if key == nil {
		return sql.NullInt64{}
	}
	id, ok := n.index.Resolve(*key)
	if !ok {
		n.stats.GeoLookupMisses++
		n.log.Debug("geo lookup miss, resolving to null", "line", line, "role", role, "type", key.Type, "lat", key.Lat, "long", key.Long)
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
