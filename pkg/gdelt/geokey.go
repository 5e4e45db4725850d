package gdelt

// GeoKey is a location triple: granularity tag plus exact coordinates. It is
// used directly as a map key, so two GeoKeys are identical iff all three
// fields compare equal, including exact floating-point equality. A struct key
// rather than a concatenated string key rules out separator collisions in
// formatted coordinates.
type GeoKey struct {
	Type int32
	Lat  float64
	Long float64
}

// GeoTag is a deduplicated GeoKey with its assigned surrogate identifier.
type GeoTag struct {
	ID  int64
	Key GeoKey
}

// Deduplicator accumulates the distinct set of non-nil location triples
// observed across all three location roles of every feed row, regardless of
// whether the row later passes the normalizer's filters. Running over the
// unfiltered feed is superset-safe: the lookup index built from the result
// can never miss for a row of the same feed.
type Deduplicator struct {
	seen  map[GeoKey]struct{}
	order []GeoKey
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		seen: make(map[GeoKey]struct{}),
	}
}

// Observe records the row's source, target and action triples. Nil triples
// are dropped, not preserved as a "missing" key.
func (d *Deduplicator) Observe(row *RawRow) {
	d.add(row.SourceGeo)
	d.add(row.TargetGeo)
	d.add(row.ActionGeo)
}

func (d *Deduplicator) add(key *GeoKey) {
	if key == nil {
		return
	}
	if _, ok := d.seen[*key]; ok {
		return
	}
	d.seen[*key] = struct{}{}
	d.order = append(d.order, *key)
}

// Len returns the current distinct-set cardinality.
func (d *Deduplicator) Len() int {
	return len(d.seen)
}

// Finalize assigns dense surrogate identifiers, starting at 1, in first
// observation order. The identifiers are stable for the lifetime of the run:
// assigned once here, then reused by the lookup index and the store.
func (d *Deduplicator) Finalize() []GeoTag {
	tags := make([]GeoTag, len(d.order))
	for i, key := range d.order {
		tags[i] = GeoTag{ID: int64(i + 1), Key: key}
	}
	return tags
}

// GeoKeyIndex maps a location triple to its surrogate identifier. It is a
// transient, process-local index derived from the deduplicated set, not the
// source of truth; each row's three location resolutions become three O(1)
// in-memory lookups instead of relational joins.
type GeoKeyIndex map[GeoKey]int64

// BuildGeoKeyIndex builds the index in a single pass over the deduplicated
// set with its assigned identifiers.
func BuildGeoKeyIndex(tags []GeoTag) GeoKeyIndex {
	index := make(GeoKeyIndex, len(tags))
	for _, tag := range tags {
		index[tag.Key] = tag.ID
	}
	return index
}

// Resolve looks up the identifier for a triple. A miss reports ok=false; the
// caller resolves it to null, since missing geospatial detail is modeled as
// unknown rather than failure.
func (idx GeoKeyIndex) Resolve(key GeoKey) (int64, bool) {
	id, ok := idx[key]
	return id, ok
}
