// Package rule models the advanced-search rule-tree: leaf comparison rules and
// boolean groups, parsed once from the wire payload into a validated tree and
// then compiled into a single query expression.
package rule

import (
	"encoding/json"

	"github.com/openfacet/facetd/internal/domain"
)

// Node is one rule-tree node: either a leaf *Rule or a *Group.
type Node interface {
	isNode()
}

// Rule is a leaf comparison: field, operator, value.
type Rule struct {
	Field    string
	Operator string
	Value    interface{}
}

func (*Rule) isNode() {}

// Group combines child nodes with a boolean condition, optionally negated.
type Group struct {
	Condition string
	Rules     []Node
	Not       bool
}

func (*Group) isNode() {}

// Parse decodes and validates a JSON rule-tree. Nodes matching neither the
// leaf shape {field, operator, value} nor the group shape {condition, rules
// [, not]} fail with a MalformedRuleError naming the offending node.
func Parse(data []byte) (Node, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.ErrMalformedPayload
	}
	return parseNode(raw)
}

func parseNode(raw interface{}) (Node, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed(raw)
	}

	_, hasField := obj["field"]
	_, hasOperator := obj["operator"]
	_, hasValue := obj["value"]
	_, hasCondition := obj["condition"]
	_, hasRules := obj["rules"]

	switch {
	case hasField && hasOperator && hasValue && !hasCondition && !hasRules:
		return parseLeaf(obj)
	case hasCondition && hasRules && !hasField && !hasOperator && !hasValue:
		return parseGroup(obj)
	default:
		return nil, malformed(obj)
	}
}

func parseLeaf(obj map[string]interface{}) (Node, error) {
	field, fieldOK := obj["field"].(string)
	operator, operatorOK := obj["operator"].(string)
	if !fieldOK || !operatorOK || field == "" || operator == "" {
		return nil, malformed(obj)
	}
	return &Rule{Field: field, Operator: operator, Value: obj["value"]}, nil
}

func parseGroup(obj map[string]interface{}) (Node, error) {
	condition, conditionOK := obj["condition"].(string)
	children, childrenOK := obj["rules"].([]interface{})
	if !conditionOK || !childrenOK || len(children) == 0 {
		return nil, malformed(obj)
	}

	not := false
	if n, ok := obj["not"]; ok {
		b, ok := n.(bool)
		if !ok {
			return nil, malformed(obj)
		}
		not = b
	}

	rules := make([]Node, 0, len(children))
	for _, child := range children {
		node, err := parseNode(child)
		if err != nil {
			return nil, err
		}
		rules = append(rules, node)
	}
	return &Group{Condition: condition, Rules: rules, Not: not}, nil
}

func malformed(node interface{}) error {
	encoded, err := json.Marshal(node)
	if err != nil {
		return domain.NewMalformedRule("<unencodable>")
	}
	return domain.NewMalformedRule(string(encoded))
}
