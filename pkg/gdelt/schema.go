package gdelt

import (
	"github.com/dwwaite/gdelt-lake/pkg/schema"
)

const (
	TableCountries = "countries"
	TableGeoTags   = "geo_tags"
	TableRecords   = "gdelt_records"
)

// Schema declares the three tables of the event lake. Insertion order
// matters: countries and geo_tags are reference data that gdelt_records rows
// point into, and the store enforces no automatic ordering.
var Schema = &schema.Schema{
	Name: "gdelt",
	Description: `
Normalized GDELT reduced (v2) event data:
- countries: accepted source/target entities (immutable reference data)
- geo_tags: deduplicated (type, lat, long) location triples with dense surrogate ids
- gdelt_records: one row per observed event, geo references resolved to geo_tags.geo_id
`,
	Tables: []schema.TableInfo{
		{
			Name:        TableCountries,
			Description: "Accepted entities (countries and continents). Joins: gdelt_records.source_code = countries.code; gdelt_records.target_code = countries.code.",
			Columns: []schema.ColumnInfo{
				{Name: "code", Type: "VARCHAR", PrimaryKey: true, Description: "Three-character entity code"},
				{Name: "name", Type: "VARCHAR", Description: "Display name"},
			},
		},
		{
			Name:        TableGeoTags,
			Description: "Deduplicated location triples. Join: gdelt_records.{source,target,action}_geo_id = geo_tags.geo_id. Two rows are never identical across (geo_type, geo_lat, geo_long).",
			Columns: []schema.ColumnInfo{
				{Name: "geo_id", Type: "BIGINT", PrimaryKey: true, Description: "Dense surrogate identifier, assigned at dedup time"},
				{Name: "geo_type", Type: "INTEGER", Description: "Granularity: 1=Country, 2=US-State, 3=US-City, 4=World-City, 5=World-State"},
				{Name: "geo_lat", Type: "DOUBLE", Description: "Latitude"},
				{Name: "geo_long", Type: "DOUBLE", Description: "Longitude"},
			},
		},
		{
			Name:        TableRecords,
			Description: "Normalized event records, append-only. Geo references are nullable: not every record resolves to a known location.",
			Columns: []schema.ColumnInfo{
				{Name: "date", Type: "DATE", Description: "Event date"},
				{Name: "source_code", Type: "VARCHAR", Description: "Foreign key -> countries.code"},
				{Name: "target_code", Type: "VARCHAR", Description: "Foreign key -> countries.code"},
				{Name: "cameo_code", Type: "VARCHAR", Description: "CAMEO event-type code"},
				{Name: "num_events", Type: "INTEGER", Description: "Number of events recorded"},
				{Name: "num_arts", Type: "INTEGER", Description: "Number of articles recorded"},
				{Name: "quad_class", Type: "INTEGER", Description: "Primary classification of the CAMEO code"},
				{Name: "goldstein", Type: "DOUBLE", Description: "Goldstein Scale score for the event code"},
				{Name: "source_geo_id", Type: "BIGINT", Nullable: true, Description: "Foreign key -> geo_tags.geo_id (source location)"},
				{Name: "target_geo_id", Type: "BIGINT", Nullable: true, Description: "Foreign key -> geo_tags.geo_id (target location)"},
				{Name: "action_geo_id", Type: "BIGINT", Nullable: true, Description: "Foreign key -> geo_tags.geo_id (action location)"},
			},
		},
	},
}
