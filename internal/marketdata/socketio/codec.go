package socketio

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/value"
)

// EncodeSubscription renders leaves as the subscribe payload:
// a list of {"target", "name", "properties"} objects.
func EncodeSubscription(leaves []value.Specification) []map[string]any {
	out := make([]map[string]any, len(leaves))
	for i, l := range leaves {
		out[i] = map[string]any{
			"target":     l.Target.String(),
			"name":       l.Name,
			"properties": l.Properties.Map(),
		}
	}
	return out
}

// DecodeTick converts one tick event payload into an update. The payload is
// an object with "target", "name", "value" and optional "properties" and
// "timestamp" (RFC 3339) fields, or its JSON text.
func DecodeTick(data any) (marketdata.Update, error) {
	var m map[string]any
	switch d := data.(type) {
	case map[string]any:
		m = d
	case string:
		if err := json.Unmarshal([]byte(d), &m); err != nil {
			return marketdata.Update{}, fmt.Errorf("tick is not a JSON object: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(d, &m); err != nil {
			return marketdata.Update{}, fmt.Errorf("tick is not a JSON object: %w", err)
		}
	default:
		return marketdata.Update{}, fmt.Errorf("unsupported tick payload of type %T", data)
	}

	rawTarget, _ := m["target"].(string)
	target, err := value.ParseTarget(rawTarget)
	if err != nil {
		return marketdata.Update{}, err
	}
	name, _ := m["name"].(string)
	if name == "" {
		return marketdata.Update{}, fmt.Errorf("tick for %s has no name", target)
	}
	v, ok := m["value"]
	if !ok || v == nil {
		return marketdata.Update{}, fmt.Errorf("tick for %s %s has no value", target, name)
	}

	props := make(map[string]string)
	if raw, ok := m["properties"].(map[string]any); ok {
		for k, pv := range raw {
			props[k] = fmt.Sprint(pv)
		}
	}

	ts := time.Now()
	if raw, ok := m["timestamp"].(string); ok && raw != "" {
		ts, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return marketdata.Update{}, fmt.Errorf("tick for %s %s: bad timestamp: %w", target, name, err)
		}
	}

	return marketdata.Update{
		Spec:      marketdata.Leaf(target, name, value.NewProperties(props)),
		Value:     v,
		Timestamp: ts,
	}, nil
}
