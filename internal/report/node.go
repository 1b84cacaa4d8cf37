package report

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// node wraps a decoded JSON value. Every accessor tolerates missing keys and
// unexpected types by returning the zero node or an empty string.
type node struct {
	v any
}

func parse(raw []byte) node {
	if len(raw) == 0 {
		return node{}
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return node{}
	}
	return node{v: v}
}

func (n node) missing() bool {
	return n.v == nil
}

// get walks keys case-insensitively; an exact match wins over a folded one.
func (n node) get(keys ...string) node {
	cur := n
	for _, key := range keys {
		obj, ok := cur.v.(map[string]any)
		if !ok {
			return node{}
		}
		if v, ok := obj[key]; ok {
			cur = node{v: v}
			continue
		}
		found := false
		for k, v := range obj {
			if strings.EqualFold(k, key) {
				cur = node{v: v}
				found = true
				break
			}
		}
		if !found {
			return node{}
		}
	}
	return cur
}

// first returns the first present, non-blank alternative.
func (n node) first(keys ...string) node {
	for _, key := range keys {
		if v := n.get(key); v.str() != "" || v.isContainer() {
			return v
		}
	}
	return node{}
}

func (n node) isContainer() bool {
	switch n.v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func (n node) str() string {
	switch v := n.v.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (n node) array() []node {
	items, ok := n.v.([]any)
	if !ok {
		return nil
	}
	out := make([]node, 0, len(items))
	for _, item := range items {
		out = append(out, node{v: item})
	}
	return out
}

// boolish accepts JSON booleans and the S/N, sim/não and 1/0 spellings.
func (n node) boolish() (bool, bool) {
	switch v := n.v.(type) {
	case bool:
		return v, true
	case json.Number:
		return v.String() != "0", true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "s", "sim", "true", "1", "yes":
			return true, true
		case "n", "nao", "não", "false", "0", "no":
			return false, true
		}
	}
	return false, false
}

func orNA(v string) string {
	if v == "" {
		return NotAvailable
	}
	return v
}
