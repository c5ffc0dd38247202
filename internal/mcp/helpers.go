package mcpserver

import (
	"encoding/json"
	"fmt"
	"math"

	"blockdoc/internal/domain"
	"blockdoc/internal/engine"
)

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// dataArg reads an object argument. Agents send either a JSON object or a
// string holding one.
func dataArg(args map[string]any, key string) (domain.Data, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return domain.Data(v), nil
	case string:
		if v == "" {
			return nil, nil
		}
		var d domain.Data
		if err := parseJSON(v, &d); err != nil {
			return nil, fmt.Errorf("%s: invalid JSON object: %w", key, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%s must be an object", key)
	}
}

// tunesArg reads a tunes mapping argument.
func tunesArg(args map[string]any, key string) (map[string]domain.Data, error) {
	raw, err := dataArg(args, key)
	if err != nil || raw == nil {
		return nil, err
	}
	out := make(map[string]domain.Data, len(raw))
	for name, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s must be an object", key, name)
		}
		out[name] = domain.Data(m)
	}
	return out, nil
}

// indexArg reads an optional block index. JSON numbers arrive as float64,
// so fractional values are rejected here.
func indexArg(args map[string]any, key string) (*int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("%s must be a number: %w", key, domain.ErrInvalidIndex)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%s=%v is not an integer: %w", key, f, domain.ErrInvalidIndex)
	}
	i := int(f)
	return &i, nil
}

// requiredIndex is indexArg for mandatory arguments.
func requiredIndex(args map[string]any, key string) (int, error) {
	p, err := indexArg(args, key)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	return *p, nil
}

func requiredString(args map[string]any, key string) (string, error) {
	s, _ := args[key].(string)
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// stringsArg reads a list of ids given as a JSON array or a string
// holding one.
func stringsArg(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must hold strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		if err := parseJSON(v, &out); err != nil {
			return nil, fmt.Errorf("%s: invalid JSON array: %w", key, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s is required", key)
	}
}

// deleteResult reports a removal and where the caret lands.
type deleteResult struct {
	Deleted      string `json:"deleted"`
	Caret        int    `json:"caret"`
	CaretBlockID string `json:"caretBlockId,omitempty"`
}

// blockSummary is how tools report a block.
type blockSummary struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Index    int                    `json:"index"`
	Depth    int                    `json:"depth"`
	Parent   string                 `json:"parent,omitempty"`
	Children []string               `json:"children,omitempty"`
	Data     domain.Data            `json:"data"`
	Tunes    map[string]domain.Data `json:"tunes,omitempty"`
}

func summarizeBlock(h *engine.Handle) blockSummary {
	var children []string
	for _, c := range h.Children() {
		children = append(children, c.ID())
	}
	return blockSummary{
		ID:       h.ID(),
		Type:     h.Tool(),
		Index:    h.Index(),
		Depth:    h.Depth(),
		Parent:   h.ParentID(),
		Children: children,
		Data:     h.Data(),
		Tunes:    h.Tunes(),
	}
}

func summarizeAll(hs []*engine.Handle) []blockSummary {
	out := make([]blockSummary, len(hs))
	for i, h := range hs {
		out[i] = summarizeBlock(h)
	}
	return out
}

func boolPtr(v bool) *bool { return &v }
