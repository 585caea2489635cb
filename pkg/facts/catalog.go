package facts

import (
	"context"
	"fmt"

	"github.com/openfroyo/capplan/pkg/engine"
)

// QueryName identifies a catalog query. Every dialect answers a catalog
// query with rows carrying the same variable names.
type QueryName string

const (
	// QueryProperties: Prop, Cap, Kind, DataType, Role, Td.
	QueryProperties QueryName = "properties"
	// QueryDescriptions: Prop, Goal, Relation, Value.
	QueryDescriptions QueryName = "descriptions"
	// QueryResources: Resource, Cap.
	QueryResources QueryName = "resources"
	// QueryInfluences: Cap, InProp, InClass, OutProp, OutClass.
	QueryInfluences QueryName = "influences"
	// QueryEqualities: Cap, Constraint, A, B.
	QueryEqualities QueryName = "equalities"
	// QueryConstraints: Cap, Constraint, Side.
	QueryConstraints QueryName = "constraints"
	// QueryExpressions: App, Op, Pos, Arg, ArgKind, Value.
	QueryExpressions QueryName = "expressions"
	// QueryEquivalences: Cap, Kind, Prop, Td, Class.
	QueryEquivalences QueryName = "equivalences"
)

// AllQueries lists the catalog in fetch order.
var AllQueries = []QueryName{
	QueryProperties,
	QueryDescriptions,
	QueryResources,
	QueryInfluences,
	QueryEqualities,
	QueryConstraints,
	QueryExpressions,
	QueryEquivalences,
}

var mangleCatalog = map[QueryName]string{
	QueryProperties:   "property_row(Prop, Cap, Kind, DataType, Role, Td)",
	QueryDescriptions: "description_row(Prop, Goal, Relation, Value)",
	QueryResources:    "resource_row(Resource, Cap)",
	QueryInfluences:   "influence_row(Cap, InProp, InClass, OutProp, OutClass)",
	QueryEqualities:   "equality_row(Cap, Constraint, A, B)",
	QueryConstraints:  "constraint_row(Cap, Constraint, Side)",
	QueryExpressions:  "expression_row(App, Op, Pos, Arg, ArgKind, Value)",
	QueryEquivalences: "equivalence_row(Cap, Kind, Prop, Td, Class)",
}

const sparqlPrefixes = `PREFIX DINEN61360: <http://www.w3id.org/hsu-aut/DINEN61360#>
PREFIX CSS: <http://www.w3id.org/hsu-aut/css#>
PREFIX CaSk: <http://www.w3id.org/hsu-aut/cask#>
PREFIX VDI3682: <http://www.w3id.org/hsu-aut/VDI3682#>
PREFIX OM: <http://openmath.org/vocab/math#>
PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
`

var sparqlCatalog = map[QueryName]string{
	QueryProperties: sparqlPrefixes + `SELECT DISTINCT ?Prop ?Cap ?Kind ?DataType ?Role ?Td WHERE {
  ?Cap a ?capType ;
    ^CSS:requiresCapability ?process .
  VALUES (?capType ?Kind) { (CaSk:ProvidedCapability "provided") (CaSk:RequiredCapability "required") }
  ?process ?relation ?inout .
  VALUES ?relation { VDI3682:hasInput VDI3682:hasOutput }
  ?inout VDI3682:isCharacterizedBy ?id .
  ?Prop DINEN61360:has_Instance_Description ?id ;
    DINEN61360:has_Type_Description ?Td .
  OPTIONAL {
    ?id a ?DataType .
    ?DataType rdfs:subClassOf DINEN61360:Simple_Data_Type .
  }
  BIND(STRAFTER(STR(?relation), "has") AS ?Role)
}`,

	QueryDescriptions: sparqlPrefixes + `SELECT DISTINCT ?Prop ?Goal ?Relation ?Value WHERE {
  ?Prop DINEN61360:has_Instance_Description ?id .
  ?id DINEN61360:Expression_Goal ?Goal .
  OPTIONAL { ?id DINEN61360:Logic_Interpretation ?Relation . }
  OPTIONAL { ?id DINEN61360:Value ?Value . }
}`,

	QueryResources: sparqlPrefixes + `SELECT DISTINCT ?Resource ?Cap WHERE {
  ?Cap a CaSk:ProvidedCapability .
  ?Resource CSS:providesCapability ?Cap .
}`,

	QueryInfluences: sparqlPrefixes + `SELECT DISTINCT ?Cap ?InProp ?InClass ?OutProp ?OutClass WHERE {
  ?Cap a CaSk:ProvidedCapability ;
    ^CSS:requiresCapability ?process .
  ?process VDI3682:hasInput ?input .
  ?input a ?InClass .
  ?InClass rdfs:subClassOf* VDI3682:State .
  ?input VDI3682:isCharacterizedBy ?inId .
  ?InProp DINEN61360:has_Instance_Description ?inId ;
    DINEN61360:has_Type_Description ?td .
  ?process VDI3682:hasOutput ?output .
  ?output a ?OutClass .
  ?OutClass rdfs:subClassOf* VDI3682:State .
  ?output VDI3682:isCharacterizedBy ?outId .
  ?OutProp DINEN61360:has_Instance_Description ?outId ;
    DINEN61360:has_Type_Description ?td .
}`,

	QueryEqualities: sparqlPrefixes + `SELECT DISTINCT ?Cap ?Constraint ?A ?B WHERE {
  ?Cap CSS:isRestrictedBy ?Constraint .
  ?Constraint OM:operator <http://www.openmath.org/cd/relation1#eq> ;
    OM:arguments/rdf:rest*/rdf:first ?argA ;
    OM:arguments/rdf:rest*/rdf:first ?argB .
  ?A DINEN61360:has_Instance_Description ?argA .
  ?B DINEN61360:has_Instance_Description ?argB .
  FILTER(?A != ?B)
}`,

	QueryConstraints: sparqlPrefixes + `SELECT ?Cap ?Constraint (IF(COUNT(?outputArgument) > 0, "Output", "Input") AS ?Side) WHERE {
  ?Cap ^CSS:requiresCapability ?process ;
    CSS:isRestrictedBy ?Constraint .
  OPTIONAL {
    ?Constraint (OM:arguments/rdf:rest*/rdf:first)* ?outputArgument .
    ?process VDI3682:hasOutput/VDI3682:isCharacterizedBy ?outputArgument .
  }
}
GROUP BY ?Cap ?Constraint`,

	QueryExpressions: sparqlPrefixes + `SELECT ?App ?Op (COUNT(?list) - 1 AS ?Pos) ?Arg ?ArgKind ?Value WHERE {
  ?App a OM:Application ;
    OM:operator ?Op ;
    OM:arguments/rdf:rest* ?list .
  ?list rdf:rest*/rdf:first ?Arg .
  OPTIONAL { ?Arg a OM:Application . BIND("application" AS ?appKind) }
  OPTIONAL { ?de DINEN61360:has_Instance_Description ?Arg . }
  OPTIONAL { ?Arg OM:value ?lit . }
  BIND(IF(BOUND(?appKind), ?appKind, IF(BOUND(?de), "variable", "literal")) AS ?ArgKind)
  BIND(IF(BOUND(?appKind), STR(?Arg), IF(BOUND(?de), STR(?de), STR(?lit))) AS ?Value)
}
GROUP BY ?App ?Op ?Arg ?ArgKind ?Value`,

	QueryEquivalences: sparqlPrefixes + `SELECT DISTINCT ?Cap ?Kind ?Prop ?Td ?Class WHERE {
  ?Cap a ?capType ;
    ^CSS:requiresCapability ?process .
  VALUES (?capType ?Kind) { (CaSk:ProvidedCapability "provided") (CaSk:RequiredCapability "required") }
  ?process VDI3682:hasInput|VDI3682:hasOutput ?inout .
  ?inout a ?Class .
  ?Class rdfs:subClassOf* VDI3682:Product .
  ?inout VDI3682:isCharacterizedBy ?id .
  ?Prop DINEN61360:has_Instance_Description ?id ;
    DINEN61360:has_Type_Description ?Td .
}`,
}

// Text returns the query text for a catalog entry in the given dialect.
func Text(d Dialect, name QueryName) (string, error) {
	var catalog map[QueryName]string
	switch d {
	case DialectMangle:
		catalog = mangleCatalog
	case DialectSPARQL:
		catalog = sparqlCatalog
	default:
		return "", engine.NewPermanentError(fmt.Sprintf("unknown query dialect %q", d), nil).
			WithCode(engine.ErrCodeValidation)
	}
	q, ok := catalog[name]
	if !ok {
		return "", engine.NewPermanentError(fmt.Sprintf("unknown catalog query %q", name), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return q, nil
}

// Select runs a catalog query against a store in the store's dialect.
func Select(ctx context.Context, s Store, name QueryName) ([]Row, error) {
	q, err := Text(s.Dialect(), name)
	if err != nil {
		return nil, err
	}
	rows, err := s.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog query %s: %w", name, err)
	}
	return rows, nil
}
