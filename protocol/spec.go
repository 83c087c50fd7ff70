package protocol

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSpec builds a Descriptor skeleton from a protocol specification
// document. The document declares the data half of a protocol (speech acts
// with typed fields, initiation/termination sets, the reply table, roles and
// end states), while custom type matchers and the role callback are attached
// in code afterwards.
//
//	name: gym
//	id: dialogmesh/gym:1.0.0
//	speech_acts:
//	  reset: {}
//	  act:
//	    action: ct:AnyObject
//	    step_id: pt:int
//	  status:
//	    content: pt:dict[pt:str]
//	initiation: [reset]
//	termination: [close]
//	reply:
//	  reset: [status]
//	roles: [agent, environment]
//	end_states:
//	  close: successful
//	keep_terminal_state_dialogues: false
//
// Type expressions use the pt:/ct: prefixes: pt:str, pt:int, pt:float,
// pt:bool, pt:bytes, pt:list[...], pt:dict[...] (string keys),
// pt:union[a, b], pt:optional[...] and ct:Name for custom types.
//
// Mapping order in the document is preserved: the position of a speech act
// and of its fields defines the codec's wire tags.
func LoadSpec(data []byte, customs map[string]CustomType) (*Descriptor, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse protocol spec: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty protocol spec")
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("protocol spec must be a mapping")
	}

	desc := &Descriptor{
		Schema:                 map[Performative][]Field{},
		ValidReplies:           map[Performative][]Performative{},
		EndStateByPerformative: map[Performative]EndState{},
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, val := doc.Content[i].Value, doc.Content[i+1]
		switch key {
		case "name":
			// informational only
		case "id":
			desc.ID = val.Value
		case "speech_acts":
			if err := parseSpeechActs(desc, val, customs); err != nil {
				return nil, err
			}
		case "initiation":
			for _, n := range val.Content {
				desc.InitialPerformatives = append(desc.InitialPerformatives, Performative(n.Value))
			}
		case "termination":
			for _, n := range val.Content {
				desc.TerminalPerformatives = append(desc.TerminalPerformatives, Performative(n.Value))
			}
		case "reply":
			for j := 0; j+1 < len(val.Content); j += 2 {
				p := Performative(val.Content[j].Value)
				replies := []Performative{}
				for _, n := range val.Content[j+1].Content {
					replies = append(replies, Performative(n.Value))
				}
				desc.ValidReplies[p] = replies
			}
		case "roles":
			for _, n := range val.Content {
				desc.Roles = append(desc.Roles, Role(n.Value))
			}
		case "end_states":
			for j := 0; j+1 < len(val.Content); j += 2 {
				p := Performative(val.Content[j].Value)
				es := EndState(val.Content[j+1].Value)
				desc.EndStateByPerformative[p] = es
				if !containsEndState(desc.EndStates, es) {
					desc.EndStates = append(desc.EndStates, es)
				}
			}
		case "keep_terminal_state_dialogues":
			desc.KeepTerminal = val.Value == "true"
		default:
			return nil, fmt.Errorf("unknown protocol spec section %q", key)
		}
	}
	return desc, nil
}

func containsEndState(states []EndState, es EndState) bool {
	for _, s := range states {
		if s == es {
			return true
		}
	}
	return false
}

func parseSpeechActs(desc *Descriptor, node *yaml.Node, customs map[string]CustomType) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("speech_acts must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		p := Performative(node.Content[i].Value)
		fieldsNode := node.Content[i+1]
		desc.Performatives = append(desc.Performatives, p)
		fields := []Field{}
		for j := 0; j+1 < len(fieldsNode.Content); j += 2 {
			name := fieldsNode.Content[j].Value
			expr := fieldsNode.Content[j+1].Value
			field, err := parseFieldExpr(name, expr, customs)
			if err != nil {
				return fmt.Errorf("speech act %q: %w", p, err)
			}
			fields = append(fields, field)
		}
		desc.Schema[p] = fields
	}
	return nil
}

func parseFieldExpr(name, expr string, customs map[string]CustomType) (Field, error) {
	expr = strings.TrimSpace(expr)
	if inner, ok := bracketArg(expr, "pt:optional"); ok {
		spec, err := parseTypeExpr(inner, customs)
		if err != nil {
			return Field{}, fmt.Errorf("field %q: %w", name, err)
		}
		return Field{Name: name, Type: spec, Optional: true}, nil
	}
	spec, err := parseTypeExpr(expr, customs)
	if err != nil {
		return Field{}, fmt.Errorf("field %q: %w", name, err)
	}
	return Field{Name: name, Type: spec}, nil
}

func parseTypeExpr(expr string, customs map[string]CustomType) (TypeSpec, error) {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "pt:str":
		return String(), nil
	case "pt:int":
		return Int(), nil
	case "pt:float":
		return Float(), nil
	case "pt:bool":
		return Bool(), nil
	case "pt:bytes":
		return Bytes(), nil
	}
	if inner, ok := bracketArg(expr, "pt:list"); ok {
		elem, err := parseTypeExpr(inner, customs)
		if err != nil {
			return TypeSpec{}, err
		}
		return ListOf(elem), nil
	}
	if inner, ok := bracketArg(expr, "pt:dict"); ok {
		// single argument form declares the value type; keys are strings
		value, err := parseTypeExpr(inner, customs)
		if err != nil {
			return TypeSpec{}, err
		}
		return MapOf(value), nil
	}
	if inner, ok := bracketArg(expr, "pt:union"); ok {
		var members []TypeSpec
		for _, part := range splitTopLevel(inner) {
			member, err := parseTypeExpr(part, customs)
			if err != nil {
				return TypeSpec{}, err
			}
			members = append(members, member)
		}
		if len(members) < 2 {
			return TypeSpec{}, fmt.Errorf("union needs at least two members in %q", expr)
		}
		return UnionOf(members...), nil
	}
	if name, ok := strings.CutPrefix(expr, "ct:"); ok {
		ct, known := customs[name]
		if !known {
			return TypeSpec{}, fmt.Errorf("custom type %q not registered", name)
		}
		return CustomSpec(ct), nil
	}
	return TypeSpec{}, fmt.Errorf("unknown type expression %q", expr)
}

// bracketArg returns the bracketed argument of prefix[...] expressions.
func bracketArg(expr, prefix string) (string, bool) {
	if !strings.HasPrefix(expr, prefix+"[") || !strings.HasSuffix(expr, "]") {
		return "", false
	}
	return expr[len(prefix)+1 : len(expr)-1], true
}

// splitTopLevel splits on commas that are not nested inside brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts
}
