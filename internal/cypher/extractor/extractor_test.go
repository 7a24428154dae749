package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	tests := []struct {
		expr    string
		comb    Combinator
		terms   [][]string
		negated []string
	}{
		{expr: "Product", comb: CombineSingle, terms: [][]string{{"Product"}}},
		{expr: ":Product", comb: CombineSingle, terms: [][]string{{"Product"}}},
		{expr: "Person&Actor", comb: CombineAnd, terms: [][]string{{"Person", "Actor"}}},
		{expr: "Person:Actor", comb: CombineAnd, terms: [][]string{{"Person", "Actor"}}},
		{expr: "Customer|Supplier", comb: CombineOr, terms: [][]string{{"Customer"}, {"Supplier"}}},
		{expr: ":PLACED|:PROCESSED", comb: CombineOr, terms: [][]string{{"PLACED"}, {"PROCESSED"}}},
		{expr: "A&B|C", comb: CombineOr, terms: [][]string{{"A", "B"}, {"C"}}},
		{expr: "Product&!Discontinued", comb: CombineSingle, terms: [][]string{{"Product"}}, negated: []string{"Discontinued"}},
		{expr: "!Deleted", comb: CombineNone, negated: []string{"Deleted"}},
		{expr: "`Order`", comb: CombineSingle, terms: [][]string{{"Order"}}},
		{expr: "", comb: CombineNone},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got := ParseLabels(tt.expr)
			assert.Equal(t, tt.comb, got.Combinator())
			assert.Equal(t, tt.terms, got.Terms)
			assert.Equal(t, tt.negated, got.Negated)
		})
	}
}

func TestLabelExprHelpers(t *testing.T) {
	e := ParseLabels("A&B|B&C")
	assert.Equal(t, []string{"A", "B", "C"}, e.Labels())
	assert.Equal(t, "A&B|B&C", e.String())
	assert.False(t, e.Empty())
	assert.True(t, ParseLabels("!X").Empty())
}

func TestScanSkipsFunctionCallsAndLiterals(t *testing.T) {
	stmt := "MATCH (p:Product)-[:BELONGS_TO]->(c:Category) WHERE p.ProductName = 'Chai (tea) [x]' RETURN count(p), [1, 2, 3]"
	ps := Scan(stmt)
	require.Len(t, ps, 3)

	assert.Equal(t, KindNode, ps[0].Kind)
	assert.Equal(t, "p", ps[0].Variable)
	assert.Equal(t, []string{"Product"}, ps[0].Labels.Labels())

	assert.Equal(t, KindRelationship, ps[1].Kind)
	assert.Equal(t, ArrowRight, ps[1].Arrow)
	assert.Equal(t, []string{"BELONGS_TO"}, ps[1].Labels.Labels())
	assert.Equal(t, "-", stmt[ps[1].LeftFrom:ps[1].LeftTo])
	assert.Equal(t, "->", stmt[ps[1].RightFrom:ps[1].RightTo])

	assert.Equal(t, "c", ps[2].Variable)
}

func TestScanArrows(t *testing.T) {
	tests := map[string]Arrow{
		"(a)-[:R]->(b)":     ArrowRight,
		"(a)<-[:R]-(b)":     ArrowLeft,
		"(a)-[:R]-(b)":      ArrowNone,
		"(a)<-[:R]->(b)":    ArrowBoth,
		"(a) - [:R] -> (b)": ArrowRight,
	}
	for stmt, want := range tests {
		ps := Scan("MATCH " + stmt + " RETURN a")
		require.Len(t, ps, 3, stmt)
		assert.Equal(t, want, ps[1].Arrow, stmt)
	}
}

func TestScanVariableLength(t *testing.T) {
	ps := Scan("MATCH (e:Employee)-[r:REPORTS_TO*1..3]->(m:Employee) RETURN m")
	require.Len(t, ps, 3)
	assert.Equal(t, "r", ps[1].Variable)
	assert.Equal(t, []string{"REPORTS_TO"}, ps[1].Labels.Labels())
}

func TestExtractPropertyMaps(t *testing.T) {
	ex := Extract("MATCH (o:Order {orderId: '10248'})-[c:CONTAINS {Quantity: 12}]->(p:Product {ProductName: $name}) RETURN p")

	assert.Equal(t, []string{"Order", "Product"}, ex.Labels)
	assert.Equal(t, []string{"CONTAINS"}, ex.RelTypes)
	require.Len(t, ex.Filters, 2)

	assert.Equal(t, KindNode, ex.Filters[0].Kind)
	assert.Equal(t, "orderId", ex.Filters[0].PropertyName)
	assert.Equal(t, "=", ex.Filters[0].Operator)
	assert.Equal(t, "10248", ex.Filters[0].PropertyValue)
	assert.True(t, ex.Filters[0].Quoted)

	assert.Equal(t, KindRelationship, ex.Filters[1].Kind)
	assert.Equal(t, "Quantity", ex.Filters[1].PropertyName)
	assert.Equal(t, "12", ex.Filters[1].PropertyValue)
	assert.False(t, ex.Filters[1].Quoted)
}

func TestExtractVariableComparisons(t *testing.T) {
	stmt := "MATCH (p:Product)-[:BELONGS_TO]->(c:Category) " +
		"WHERE p.UnitPrice > 50 AND p.`UnitsInStock` <= 10 AND c.CategoryName IN ['Seafood', 'Produce'] " +
		"AND p.ProductName starts   with 'Ch' AND p.Discontinued != true AND o.Freight > 3 " +
		"RETURN p.ProductName"
	ex := Extract(stmt)
	require.Len(t, ex.Filters, 5)

	got := make([][3]string, len(ex.Filters))
	for i, f := range ex.Filters {
		got[i] = [3]string{f.PropertyName, f.Operator, f.PropertyValue}
	}
	assert.Equal(t, [][3]string{
		{"UnitPrice", ">", "50"},
		{"UnitsInStock", "<=", "10"},
		{"CategoryName", "IN", "['Seafood', 'Produce']"},
		{"ProductName", "STARTS WITH", "Ch"},
		{"Discontinued", "<>", "true"},
	}, got)
	assert.Equal(t, []string{"Category"}, ex.Filters[2].LabelsOrTypes.Labels())
	assert.Equal(t, []string{"Seafood", "Produce"}, ListItems(ex.Filters[2].PropertyValue))
}

func TestExtractReversedComparisons(t *testing.T) {
	ex := Extract("MATCH (p:Product) WHERE 500000 = p.UnitPrice AND 10 < p.UnitsInStock AND 'Chai' <> p.ProductName RETURN p")
	got := make([][3]string, len(ex.Filters))
	for i, f := range ex.Filters {
		got[i] = [3]string{f.PropertyName, f.Operator, f.PropertyValue}
	}
	assert.Equal(t, [][3]string{
		{"UnitPrice", "=", "500000"},
		{"UnitsInStock", ">", "10"},
		{"ProductName", "<>", "Chai"},
	}, got)
	assert.True(t, ex.Filters[2].Quoted)
	assert.Equal(t, []string{"Product"}, ex.Filters[0].LabelsOrTypes.Labels())
}

func TestExtractLabelPredicates(t *testing.T) {
	ex := Extract("MATCH (p)-[r]->(c:Category) WHERE p:Prodcut|Supplier AND NOT p:!Discontinued AND r:BELONGS_TO AND p.UnitPrice > 5 RETURN p")
	assert.Equal(t, []string{"Category", "Prodcut", "Supplier"}, ex.Labels)
	assert.Equal(t, []string{"BELONGS_TO"}, ex.RelTypes)

	require.Len(t, ex.Filters, 1)
	assert.Equal(t, "UnitPrice", ex.Filters[0].PropertyName)
	assert.Equal(t, []string{"Prodcut", "Supplier"}, ex.Filters[0].LabelsOrTypes.Labels())
}

func TestExtractLabelPredicatesSkipMapsAndLiterals(t *testing.T) {
	ex := Extract("MATCH (p:Product) WHERE p.ProductName = 'a:b' RETURN {name: p.ProductName, stock: count(p)} AS m, p {.ProductName, kind: x}")
	assert.Equal(t, []string{"Product"}, ex.Labels)
	assert.Empty(t, ex.RelTypes)
}

func TestExtractIgnoresPropertyToPropertyComparisons(t *testing.T) {
	ex := Extract("MATCH (o:Order) WHERE o.ShippedDate > o.RequiredDate RETURN o")
	assert.Empty(t, ex.Filters)
}

func TestExtractUnlabelledPatterns(t *testing.T) {
	ex := Extract("MATCH (n {name: 'x'})-[r]->(m) WHERE n.age > 3 RETURN n")
	assert.Empty(t, ex.Labels)
	assert.Empty(t, ex.RelTypes)
	assert.Empty(t, ex.Filters)
}

func TestParsePropertyMap(t *testing.T) {
	pairs := ParsePropertyMap(`{name: 'a, b', tags: ['x', 'y'], n: 3, p: $p}`)
	require.Len(t, pairs, 4)
	assert.Equal(t, PropertyPair{Key: "name", Value: "a, b", Quoted: true}, pairs[0])
	assert.Equal(t, PropertyPair{Key: "tags", Value: "['x', 'y']"}, pairs[1])
	assert.Equal(t, PropertyPair{Key: "n", Value: "3"}, pairs[2])
	assert.Equal(t, PropertyPair{Key: "p", Value: "$p", Param: true}, pairs[3])
}

func TestMaskStringsKeepsOffsets(t *testing.T) {
	in := `RETURN 'a(b)' + "c[d]"`
	out := MaskStrings(in)
	assert.Len(t, out, len(in))
	assert.Equal(t, `RETURN 'xxxx' + "xxxx"`, out)
}
