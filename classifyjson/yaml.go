package classifyjson

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hengadev/classify"
)

// MarshalYAML lets a Value be written by yaml.v3 with its key order kept.
func (v *Value) MarshalYAML() (any, error) {
	return toNode(v), nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := fromNode(node)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}

// ToYAML writes v as a YAML document.
func ToYAML(v *Value) ([]byte, error) {
	return yaml.Marshal(v)
}

// FromYAML reads a YAML document into a Value.
func FromYAML(data []byte) (*Value, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("%w: %v", classify.ErrInvalidFormat, err)
	}
	return fromNode(&node)
}

func toNode(v *Value) *yaml.Node {
	switch v.Kind() {
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindNumber:
		tag := "!!float"
		if _, err := strconv.ParseInt(v.s, 10, 64); err == nil {
			tag = "!!int"
		} else if _, err := strconv.ParseUint(v.s, 10, 64); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.s}
	case KindString:
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.s}
		if strings.Contains(v.s, "\n") {
			n.Style = yaml.LiteralStyle
		}
		return n
	case KindList:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.list {
			n.Content = append(n.Content, toNode(item))
		}
		return n
	case KindDict:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.keys {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				toNode(v.dict[k]))
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

func fromNode(n *yaml.Node) (*Value, error) {
	switch n.Kind {
	case 0:
		return Null(), nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.SequenceNode:
		list := List()
		for _, c := range n.Content {
			item, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			list.list = append(list.list, item)
		}
		return list, nil
	case yaml.MappingNode:
		d := NewDict()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, val := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: line %d: mapping keys must be scalars", classify.ErrInvalidFormat, k.Line)
			}
			item, err := fromNode(val)
			if err != nil {
				return nil, err
			}
			d.Set(k.Value, item)
		}
		return d, nil
	case yaml.ScalarNode:
		return fromScalar(n)
	}
	return nil, fmt.Errorf("%w: line %d: unexpected YAML node", classify.ErrInvalidFormat, n.Line)
}

func fromScalar(n *yaml.Node) (*Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("%w: %v", classify.ErrInvalidFormat, err)
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return Int(i), nil
		}
		var u uint64
		if err := n.Decode(&u); err != nil {
			return nil, fmt.Errorf("%w: %v", classify.ErrInvalidFormat, err)
		}
		return Uint(u), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %v", classify.ErrInvalidFormat, err)
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return String(strconv.FormatFloat(f, 'g', -1, 64)), nil
		}
		return Float(f), nil
	}
	return String(n.Value), nil
}
