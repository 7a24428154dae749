package validator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	errx "github.com/cypherqa-core-poc-v1/server/internal/core/error"
	"github.com/cypherqa-core-poc-v1/server/internal/cypher/schema"
)

func ptr[T any](v T) *T { return &v }

func testSchema() *schema.Schema {
	return schema.New(
		map[string][]schema.Property{
			"Product": {
				{Name: "ProductName", Type: schema.TypeString},
				{Name: "UnitPrice", Type: schema.TypeFloat, Min: ptr(0.0), Max: ptr(100000.0)},
				{Name: "UnitsInStock", Type: schema.TypeInteger, Min: ptr(0.0), Max: ptr(125.0)},
			},
			"Category": {
				{Name: "CategoryName", Type: schema.TypeString, Values: []string{"Beverages", "Produce", "Seafood"}, DistinctCount: ptr(3)},
			},
			"Supplier": {
				{Name: "Country", Type: schema.TypeString},
			},
			"Order": {
				{Name: "orderId", Type: schema.TypeString},
			},
		},
		map[string][]schema.Property{
			"CONTAINS": {{Name: "Quantity", Type: schema.TypeInteger, Min: ptr(1.0), Max: ptr(130.0)}},
		},
		[]schema.Relationship{
			{Start: "Product", Type: "BELONGS_TO", End: "Category"},
			{Start: "Product", Type: "SUPPLIED_BY", End: "Supplier"},
			{Start: "Order", Type: "CONTAINS", End: "Product"},
		},
	)
}

func validate(t *testing.T, v *Validator, stmt string) Result {
	t.Helper()
	res, err := v.Validate(context.Background(), stmt, "question")
	require.NoError(t, err)
	return res
}

func TestCleanStatementPasses(t *testing.T) {
	stmt := "MATCH (p:Product)-[:BELONGS_TO]->(c:Category {CategoryName: 'Seafood'}) WHERE p.UnitPrice < 20 RETURN p.ProductName"
	res := validate(t, New(testSchema()), stmt)

	assert.Empty(t, res.Errors)
	assert.Empty(t, res.MappingErrors)
	assert.Equal(t, stmt, res.CorrectedStatement)
	assert.False(t, res.HasCorrective())
}

func TestUnknownLabelAndType(t *testing.T) {
	res := validate(t, New(testSchema()), "MATCH (p:Prodcut)-[:MADE_BY]->(s:Supplier) WHERE p.UnitPrice > 5 RETURN p")

	assert.Equal(t, []Issue{
		{Kind: errx.KindSchema, Message: "Label Prodcut does not exist in the graph schema."},
		{Kind: errx.KindSchema, Message: "Relationship type MADE_BY does not exist in the graph schema."},
	}, res.Errors)
	assert.True(t, res.HasCorrective())
}

func TestMissingProperty(t *testing.T) {
	res := validate(t, New(testSchema()), "MATCH (p:Product) WHERE p.Color = 'red' RETURN p")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Node Product does not have the property Color in the graph database.", res.Errors[0].Message)

	res = validate(t, New(testSchema()), "MATCH (o:Order)-[c:CONTAINS {Discount: 0.1}]->(p:Product) RETURN p")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Relationship CONTAINS does not have the property Discount in the graph database.", res.Errors[0].Message)
}

func TestOrLabelsNeedOnePropertyOwner(t *testing.T) {
	res := validate(t, New(testSchema()), "MATCH (n:Product|Supplier) WHERE n.Country = 'Japan' RETURN n")
	assert.Empty(t, res.Errors)

	res = validate(t, New(testSchema()), "MATCH (n:Product&Supplier) WHERE n.Country = 'Japan' RETURN n")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Node Product and Supplier does not have the property Country in the graph database.", res.Errors[0].Message)
}

func TestEnumMembership(t *testing.T) {
	v := New(testSchema())

	res := validate(t, v, "MATCH (c:Category) WHERE c.CategoryName = 'Toys' RETURN c")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Node Category with property CategoryName = Toys not found in graph database.", res.Errors[0].Message)

	res = validate(t, v, "MATCH (c:Category) WHERE c.CategoryName = 'seafood' RETURN c")
	assert.Empty(t, res.Errors, "membership ignores case")

	res = validate(t, v, "MATCH (c:Category) WHERE c.CategoryName IN ['Seafood', 'Toys'] RETURN c")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "= Toys not found")

	res = validate(t, v, "MATCH (c:Category) WHERE c.CategoryName CONTAINS 'Sea' RETURN c")
	assert.Empty(t, res.Errors, "partial matches are not enum checked")
}

func TestNumericRange(t *testing.T) {
	v := New(testSchema())

	res := validate(t, v, "MATCH (p:Product) WHERE p.UnitPrice = 500000 RETURN p.ProductName")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, errx.KindSchema, res.Errors[0].Kind)
	assert.Equal(t, "Node Product has property UnitPrice = 500000 which is out of range 0 to 100000 in graph database.",
		res.Errors[0].Message)

	res = validate(t, v, "MATCH (p:Product) WHERE p.UnitPrice > 100000 RETURN p")
	assert.Len(t, res.Errors, 1, "no value can exceed the maximum")

	res = validate(t, v, "MATCH (p:Product) WHERE p.UnitPrice < 500000 RETURN p")
	assert.Empty(t, res.Errors)

	res = validate(t, v, "MATCH (p:Product) WHERE p.UnitPrice = 50 RETURN p")
	assert.Empty(t, res.Errors)

	res = validate(t, v, "MATCH (o:Order)-[c:CONTAINS {Quantity: 0}]->(p:Product) RETURN p")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "Relationship CONTAINS has property Quantity = 0 which is out of range 1 to 130")
}

func TestWriteClauseBan(t *testing.T) {
	variants := func(wc string) []string {
		lower := strings.ToLower(wc)
		return []string{wc, lower, strings.ToUpper(lower[:1]) + lower[1:]}
	}
	v := New(testSchema())
	for _, wc := range WriteClauses {
		for _, kw := range variants(wc) {
			stmt := "MATCH (p:Product) " + kw + " p RETURN p"
			res := validate(t, v, stmt)
			require.True(t, res.HasPolicyViolation(), stmt)
			assert.Contains(t, res.Messages(), "Cypher contains write clause: "+wc, stmt)
		}
	}
}

func TestWriteClauseBanScansWholeStatement(t *testing.T) {
	tests := []struct {
		stmt string
		want []string
	}{
		{"MATCH (p:Product) WHERE p.ProductName = 'SET' RETURN p", []string{"SET"}},
		{"MATCH (p:Product) RETURN p.set, $merge", []string{"SET", "MERGE"}},
		{"MATCH (n) DETACH\n  DELETE n", []string{"DELETE", "DETACH DELETE"}},
		{"MATCH (p:Product) CALL apoc.create.setProperty(p,'x',1) YIELD node RETURN node", []string{"CREATE", "apoc.create"}},
		{"MATCH (p:Product) CALL apoc.merge.node(['Product'],{ProductName:'x'}) YIELD node RETURN node", []string{"MERGE", "apoc.merge"}},
		{"CALL apoc.cypher.doIt('MATCH (n) DETACH DELETE n', {}) YIELD value RETURN value", []string{"DELETE", "DETACH DELETE", "apoc.cypher.doIt"}},
		{"MATCH (p:Product) CALL apoc.refactor.rename.label('Product', 'Item') YIELD total RETURN total", []string{"apoc.refactor"}},
		{"CALL apoc.periodic.iterate('MATCH (p) RETURN p', 'RETURN 1', {}) YIELD batches RETURN batches", []string{"apoc.periodic"}},
	}
	v := New(testSchema())
	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			assert.Equal(t, tt.want, FindWriteClauses(tt.stmt))
			assert.True(t, validate(t, v, tt.stmt).HasPolicyViolation())
		})
	}
}

func TestWriteClauseBanKeepsWordBoundaries(t *testing.T) {
	for _, stmt := range []string{
		"MATCH (p:Product) RETURN p.createdAt SKIP 1",
		"MATCH (p:Product) RETURN p ORDER BY p.UnitPrice OFFSET 2",
		"MATCH (p:Product) WHERE p.ProductName = 'Reset' RETURN p",
		"CALL apoc.meta.schema() YIELD value RETURN value",
	} {
		assert.Empty(t, FindWriteClauses(stmt), stmt)
	}
}

func TestReadEntryClause(t *testing.T) {
	v := New(testSchema())
	for _, stmt := range []string{
		"RETURN 1",
		"EXPLAIN MATCH (p:Product) RETURN p",
		"PROFILE MATCH (p:Product) RETURN p",
		"USE neo4j MATCH (p:Product) RETURN p",
	} {
		res := validate(t, v, stmt)
		assert.True(t, res.HasPolicyViolation(), stmt)
		assert.True(t, res.HasCorrective(), stmt)
		assert.Contains(t, res.Messages(), ReadEntryMessage, stmt)
	}

	for _, stmt := range []string{
		"MATCH (p:Product) RETURN p",
		"  optional match (p:Product) RETURN p",
		"WITH 5 AS n MATCH (p:Product) WHERE p.UnitPrice > n RETURN p",
		"UNWIND ['Chai', 'Chang'] AS name MATCH (p:Product {ProductName: name}) RETURN p",
		"CALL db.labels() YIELD label RETURN label",
		"// top products\nMATCH (p:Product) RETURN p",
	} {
		assert.True(t, StartsWithReadClause(stmt), stmt)
	}
}

func TestLabelPredicateIsSchemaChecked(t *testing.T) {
	v := New(testSchema())

	res := validate(t, v, "MATCH (p) WHERE p:Prodcut RETURN p")
	assert.Equal(t, []Issue{{Kind: errx.KindSchema, Message: "Label Prodcut does not exist in the graph schema."}}, res.Errors)

	res = validate(t, v, "MATCH (p) WHERE p:Product AND p.Color = 'red' RETURN p")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Node Product does not have the property Color in the graph database.", res.Errors[0].Message)

	res = validate(t, v, "MATCH (p) WHERE p:Product|Supplier RETURN p")
	assert.Empty(t, res.Errors)
}

func TestReversedComparisonIsRangeChecked(t *testing.T) {
	res := validate(t, New(testSchema()), "MATCH (p:Product) WHERE 500000 = p.UnitPrice RETURN p.ProductName")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Node Product has property UnitPrice = 500000 which is out of range 0 to 100000 in graph database.",
		res.Errors[0].Message)
}

func TestDirectionCorrection(t *testing.T) {
	v := New(testSchema())

	res := validate(t, v, "MATCH (c:Category)-[:BELONGS_TO]->(p:Product) RETURN p.ProductName")
	assert.Equal(t, "MATCH (c:Category)<-[:BELONGS_TO]-(p:Product) RETURN p.ProductName", res.CorrectedStatement)

	res = validate(t, v, "MATCH (p:Product)<-[:BELONGS_TO]-(c:Category) RETURN p")
	assert.Equal(t, "MATCH (p:Product)-[:BELONGS_TO]->(c:Category) RETURN p", res.CorrectedStatement)

	// labels bound earlier through the variable
	res = validate(t, v, "MATCH (c:Category {CategoryName: 'Produce'}) MATCH (c)-[:BELONGS_TO]->(p:Product) RETURN p")
	assert.Equal(t, "MATCH (c:Category {CategoryName: 'Produce'}) MATCH (c)<-[:BELONGS_TO]-(p:Product) RETURN p", res.CorrectedStatement)

	stmt := "MATCH (p:Product)-[:BELONGS_TO]->(c:Category) RETURN p"
	assert.Equal(t, stmt, validate(t, v, stmt).CorrectedStatement)

	undirected := "MATCH (c:Category)-[:BELONGS_TO]-(p:Product) RETURN p"
	assert.Equal(t, undirected, validate(t, v, undirected).CorrectedStatement)
}

func TestValidationIsIdempotent(t *testing.T) {
	semantic := semanticFunc(func(context.Context, *schema.Schema, string, string) (*SemanticReport, error) {
		return &SemanticReport{Errors: []string{"question asks for suppliers"}}, nil
	})
	v := New(testSchema(), WithSemanticChecker(semantic))

	stmt := "MATCH (c:Category)-[:BELONGS_TO]->(p:Prodcut) WHERE c.CategoryName = 'Toys' CREATE (x:Category) RETURN p"
	first := validate(t, v, stmt)
	second := validate(t, v, stmt)
	assert.Equal(t, first.Errors, second.Errors)
	assert.Equal(t, first.CorrectedStatement, second.CorrectedStatement)

	again := validate(t, v, first.CorrectedStatement)
	assert.Equal(t, first.CorrectedStatement, again.CorrectedStatement)
}

type syntaxFunc func(ctx context.Context, stmt string) error

func (f syntaxFunc) Explain(ctx context.Context, stmt string) error { return f(ctx, stmt) }

type semanticFunc func(ctx context.Context, s *schema.Schema, question, stmt string) (*SemanticReport, error)

func (f semanticFunc) Review(ctx context.Context, s *schema.Schema, question, stmt string) (*SemanticReport, error) {
	return f(ctx, s, question, stmt)
}

type mockValues struct{ mock.Mock }

func (m *mockValues) ValueExists(ctx context.Context, label, property, value string) (bool, error) {
	args := m.Called(ctx, label, property, value)
	return args.Bool(0), args.Error(1)
}

func TestSyntaxCheck(t *testing.T) {
	v := New(testSchema(), WithSyntaxChecker(syntaxFunc(func(context.Context, string) error {
		return errors.New("Invalid input 'RETRUN'")
	})))
	res := validate(t, v, "MATCH (p:Product) RETRUN p")
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, Issue{Kind: errx.KindSyntax, Message: "Invalid input 'RETRUN'"}, res.Errors[0])

	v = New(testSchema(), WithSyntaxChecker(syntaxFunc(func(context.Context, string) error {
		return errx.WrapNeo4j(errors.New("connection refused"))
	})))
	_, err := v.Validate(context.Background(), "MATCH (p:Product) RETURN p", "q")
	require.Error(t, err)
}

func TestSemanticFiltersBecomeMappingErrors(t *testing.T) {
	values := &mockValues{}
	values.On("ValueExists", mock.Anything, "Supplier", "Country", "Atlantis").Return(false, nil).Once()
	values.On("ValueExists", mock.Anything, "Supplier", "Country", "Japan").Return(true, nil).Once()

	semantic := semanticFunc(func(context.Context, *schema.Schema, string, string) (*SemanticReport, error) {
		return &SemanticReport{Filters: []SemanticFilter{
			{NodeLabel: "Supplier", PropertyKey: "Country", PropertyValue: "Atlantis"},
			{NodeLabel: "Supplier", PropertyKey: "Country", PropertyValue: "Japan"},
			// non-string and unknown properties are not looked up
			{NodeLabel: "Product", PropertyKey: "UnitPrice", PropertyValue: "3"},
			{NodeLabel: "Supplier", PropertyKey: "Planet", PropertyValue: "Mars"},
		}}, nil
	})
	v := New(testSchema(), WithSemanticChecker(semantic), WithValueChecker(values))

	res := validate(t, v, "MATCH (s:Supplier) WHERE s.Country IN ['Atlantis', 'Japan'] RETURN s")
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"Missing value mapping for Supplier on property Country with value Atlantis"}, res.MappingErrors)
	assert.False(t, res.HasCorrective())
	values.AssertExpectations(t)
}

func TestSemanticReviewFailureIsSkipped(t *testing.T) {
	semantic := semanticFunc(func(context.Context, *schema.Schema, string, string) (*SemanticReport, error) {
		return nil, errors.New("model unavailable")
	})
	v := New(testSchema(), WithSemanticChecker(semantic))
	res := validate(t, v, "MATCH (p:Product) RETURN p")
	assert.Empty(t, res.Errors)
}

func TestSemanticErrorsAreCorrective(t *testing.T) {
	semantic := semanticFunc(func(context.Context, *schema.Schema, string, string) (*SemanticReport, error) {
		return &SemanticReport{Errors: []string{"The query does not return supplier names."}}, nil
	})
	v := New(testSchema(), WithSemanticChecker(semantic))
	res := validate(t, v, "MATCH (p:Product) RETURN p")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, errx.KindSemantic, res.Errors[0].Kind)
	assert.True(t, res.HasCorrective())
}
