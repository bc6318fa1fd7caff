package rule

import (
	"github.com/olivere/elastic/v7"

	"github.com/openfacet/facetd/internal/domain"
	"github.com/openfacet/facetd/internal/domain/facet"
)

// booleanTranslations maps frontend boolean operators to their query-DSL
// combinators.
var booleanTranslations = map[string]string{
	"AND": "must",
	"OR":  "should",
}

// Compile translates a validated rule-tree into a single composed query by
// structural recursion. It is a pure function: facets provide read-only
// operator translation, no index connection is involved.
func Compile(node Node, facets map[string]facet.Facet) (elastic.Query, error) {
	switch n := node.(type) {
	case *Rule:
		return compileLeaf(n, facets)
	case *Group:
		return compileGroup(n, facets)
	default:
		return nil, domain.NewMalformedRule("<nil>")
	}
}

func compileLeaf(r *Rule, facets map[string]facet.Facet) (elastic.Query, error) {
	f, ok := facets[r.Field]
	if !ok {
		return nil, domain.NewUnknownField(r.Field)
	}
	return f.QueryFor(facet.Operator(r.Operator), r.Value)
}

func compileGroup(g *Group, facets map[string]facet.Facet) (elastic.Query, error) {
	combinator, ok := booleanTranslations[g.Condition]
	if !ok {
		return nil, domain.NewInvalidCondition(g.Condition)
	}

	children := make([]elastic.Query, 0, len(g.Rules))
	for _, child := range g.Rules {
		q, err := Compile(child, facets)
		if err != nil {
			return nil, err
		}
		children = append(children, q)
	}

	composite := elastic.NewBoolQuery()
	switch combinator {
	case "must":
		composite.Must(children...)
	case "should":
		composite.Should(children...)
	}

	if g.Not {
		return elastic.NewBoolQuery().MustNot(composite), nil
	}
	return composite, nil
}
