package ecoregions

// Reference queries. Labels are resolved in English; the admin queries select
// the external code as ?value.
const (
	// US states by FIPS 5-2 numeric code (P5087).
	queryUSStates = `
SELECT ?item ?itemLabel ?value
WHERE
{
  ?item wdt:P5087 ?value
  SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_LANGUAGE],en". }
}`

	// US counties by FIPS 6-4 code (P882).
	queryUSCounties = `
SELECT ?item ?itemLabel ?value
WHERE
{
  ?item wdt:P882 ?value
  SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_LANGUAGE],en". }
}`

	// Mexican states by INEGI state code (P901).
	queryMXStates = `
SELECT ?item ?itemLabel ?value
WHERE
{
  ?item wdt:P901 ?value
  SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_LANGUAGE],en". }
}`

	// Canadian provinces (Q11828004) and territories (Q3750285).
	queryCAStates = `
SELECT ?item ?itemLabel
WHERE
{
  SERVICE wikibase:label { bd:serviceParam wikibase:language "[AUTO_LANGUAGE],en". }
  {?item wdt:P31 wd:Q3750285.}
  UNION
  {?item wdt:P31 wd:Q11828004.}
}`

	// Ecoregion units (Q52111338, Q52111409) with their English alternate
	// labels collapsed into one comma separated string.
	queryEcoregions = `
SELECT ?item ?itemLabel ?itemDescription (GROUP_CONCAT(DISTINCT ?altLabel; separator=",") AS ?altLabel_list)
WHERE
{
  {?item wdt:P31 wd:Q52111338.}
  UNION
  {?item wdt:P31 wd:Q52111409.}
  OPTIONAL { ?item skos:altLabel ?altLabel . FILTER (lang(?altLabel) = "en") }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en". }
}
GROUP BY ?item ?itemLabel ?itemDescription`
)

// adminQuery pairs an admin query with the category its rows are tagged with.
type adminQuery struct {
	category Category
	query    string
	withCode bool
}

// adminQueries run in this order; the admin list keeps it.
var adminQueries = []adminQuery{
	{category: CategoryUS, query: queryUSStates, withCode: true},
	{category: CategoryUS, query: queryUSCounties, withCode: true},
	{category: CategoryMX, query: queryMXStates, withCode: true},
	{category: CategoryCA, query: queryCAStates, withCode: false},
}
