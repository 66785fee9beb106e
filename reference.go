package ecoregions

import (
	"fmt"
	"strings"
)

// Category tags a reference record with the dataset it came from.
type Category string

const (
	CategoryUS         Category = "US"
	CategoryCA         Category = "CA"
	CategoryMX         Category = "MX"
	CategoryEcoregions Category = "Ecoregions"
)

// CategoryCountries maps each administrative category to the Wikidata item of
// its country.
var CategoryCountries = map[Category]string{
	CategoryUS: "Q30",
	CategoryCA: "Q16",
	CategoryMX: "Q96",
}

// altLabelSeparator joins alternate labels in the ecoregion query's
// GROUP_CONCAT and splits them back apart.
const altLabelSeparator = ","

// AdminRecord is one administrative unit (US state or county, MX state,
// CA province or territory).
type AdminRecord struct {
	Category   Category
	Country    string // Wikidata item of the country, e.g. "Q30"
	ExternalID string // FIPS/INEGI code; empty for CA records
	WDID       string
	Label      string
}

// HasExternalID reports whether the record carries an external code.
// CA units have none and are matched by label only.
func (r AdminRecord) HasExternalID() bool {
	return r.ExternalID != ""
}

// EcoregionRecord is one ecoregion classification unit.
type EcoregionRecord struct {
	Category    Category
	WDID        string
	Label       string
	Description string
	// AltLabels always has at least one element. An item without alternate
	// labels yields [""].
	AltLabels []string
}

// ReferenceCache is the pair of reference lists persisted on disk.
// It is never mutated after construction.
type ReferenceCache struct {
	Admin      []AdminRecord
	Ecoregions []EcoregionRecord
}

// wdID returns the last path segment of an entity URI
// ("http://www.wikidata.org/entity/Q1439" -> "Q1439").
func wdID(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// splitAltLabels mirrors a plain split: "" becomes [""].
func splitAltLabels(s string) []string {
	return strings.Split(s, altLabelSeparator)
}

// adminRecordFromBinding maps one admin query row. withCode is false for
// queries that select no ?value.
func adminRecordFromBinding(cat Category, b Binding, withCode bool) (AdminRecord, error) {
	item, ok := b["item"]
	if !ok {
		return AdminRecord{}, fmt.Errorf("%s binding without ?item", cat)
	}
	rec := AdminRecord{
		Category: cat,
		Country:  CategoryCountries[cat],
		WDID:     wdID(item.Value),
		Label:    b.Value("itemLabel"),
	}
	if withCode {
		v, ok := b["value"]
		if !ok {
			return AdminRecord{}, fmt.Errorf("%s binding %s without ?value", cat, rec.WDID)
		}
		rec.ExternalID = v.Value
	}
	return rec, nil
}

// ecoregionRecordFromBinding maps one ecoregion query row.
func ecoregionRecordFromBinding(b Binding) (EcoregionRecord, error) {
	item, ok := b["item"]
	if !ok {
		return EcoregionRecord{}, fmt.Errorf("%s binding without ?item", CategoryEcoregions)
	}
	return EcoregionRecord{
		Category:    CategoryEcoregions,
		WDID:        wdID(item.Value),
		Label:       b.Value("itemLabel"),
		Description: b.Value("itemDescription"),
		AltLabels:   splitAltLabels(b.Value("altLabel_list")),
	}, nil
}

// FormatKey returns the string form used when comparing lookup keys, so that
// numeric codes such as 6 or "06" can be passed through unchanged.
func FormatKey(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case fmt.Stringer:
		return k.String()
	default:
		return fmt.Sprint(k)
	}
}
