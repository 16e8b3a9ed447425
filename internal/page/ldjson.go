package page

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Node is one decoded JSON-LD object.
type Node map[string]interface{}

func decodeLinkedData(doc *goquery.Document, problems []string) ([]Node, []string) {
	var nodes []Node

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			problems = append(problems, fmt.Sprintf("ld+json block %d: %v", i, err))
			return
		}

		nodes = flatten(v, nodes)
	})

	return nodes, problems
}

func flatten(v interface{}, out []Node) []Node {
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			out = flatten(item, out)
		}
	case map[string]interface{}:
		out = append(out, Node(t))
		if graph, ok := t["@graph"]; ok {
			out = flatten(graph, out)
		}
	}
	return out
}

// Product returns the first node typed as a Product, or failing that the
// first node that carries offers.
func (p *Page) Product() (Node, bool) {
	for _, n := range p.Nodes {
		if n.IsType("Product") {
			return n, true
		}
	}
	for _, n := range p.Nodes {
		if _, ok := n["offers"]; ok {
			return n, true
		}
	}
	return nil, false
}

// NodeOfType returns the first node with the given @type.
func (p *Page) NodeOfType(typ string) (Node, bool) {
	for _, n := range p.Nodes {
		if n.IsType(typ) {
			return n, true
		}
	}
	return nil, false
}

func (n Node) IsType(typ string) bool {
	switch t := n["@type"].(type) {
	case string:
		return strings.EqualFold(t, typ)
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, typ) {
				return true
			}
		}
	}
	return false
}

// Lookup walks path through nested objects. Arrays met on the way resolve to
// their first element.
func (n Node) Lookup(path ...string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(n)

	for _, key := range path {
		cur = first(cur)
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok || cur == nil {
			return nil, false
		}
	}

	v := first(cur)
	return v, v != nil
}

func first(v interface{}) interface{} {
	for {
		arr, ok := v.([]interface{})
		if !ok {
			return v
		}
		if len(arr) == 0 {
			return nil
		}
		v = arr[0]
	}
}

// String resolves path to a string. Objects resolve through their "name" key.
func (n Node) String(path ...string) string {
	v, ok := n.Lookup(path...)
	if !ok {
		return ""
	}

	switch t := v.(type) {
	case string:
		return CollapseSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]interface{}:
		return Node(t).String("name")
	}
	return ""
}

var plainNumber = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Number resolves path to a non-negative machine-readable number: a JSON
// number, or a string holding digits with an optional dot fraction.
// Localised display text such as "1.299,00" is rejected.
func (n Node) Number(path ...string) (float64, bool) {
	v, ok := n.Lookup(path...)
	if !ok {
		return 0, false
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		s := strings.TrimSpace(t)
		if !plainNumber.MatchString(s) {
			return 0, false
		}
		var err error
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// Strings resolves path to a list of strings; a single string becomes a
// one-element list.
func (n Node) Strings(path ...string) []string {
	parent := n
	if len(path) > 1 {
		v, ok := n.Lookup(path[:len(path)-1]...)
		if !ok {
			return nil
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		parent = Node(m)
	}

	raw, ok := parent[path[len(path)-1]]
	if !ok {
		return nil
	}

	var out []string
	collect := func(item interface{}) {
		switch t := item.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		case map[string]interface{}:
			if s := Node(t).String("url"); s != "" {
				out = append(out, s)
			} else if s := Node(t).String("contentUrl"); s != "" {
				out = append(out, s)
			}
		}
	}

	if arr, ok := raw.([]interface{}); ok {
		for _, item := range arr {
			collect(item)
		}
	} else {
		collect(raw)
	}
	return out
}
