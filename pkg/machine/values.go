package machine

import (
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/troupe/pkg/domain"
)

// Reference prefixes accepted in literal values of a definition.
const (
	refContext = "$context"
	refEvent   = "$event"
	refParams  = "$params"
)

// resolveRefs replaces "$context.x", "$event.payload.x" and "$params.x"
// strings by the values they point to. Maps and lists are copied.
func resolveRefs(v any, args Args) any {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, "$") {
			return val
		}
		head, rest, _ := strings.Cut(val, ".")
		var root any
		switch head {
		case refContext:
			root = args.Context
		case refEvent:
			root = args.Event
		case refParams:
			root = args.Params
		default:
			return val
		}
		if rest == "" {
			return root
		}
		return lookupPath(root, strings.Split(rest, "."))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveRefs(item, args)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveRefs(item, args)
		}
		return out
	}
	return v
}

func lookupPath(root any, path []string) any {
	cur := root
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[key]
		case domain.Event:
			switch key {
			case "type":
				cur = node.Type
			case "payload":
				cur = node.Payload
			default:
				return nil
			}
		case *domain.ActorError:
			switch key {
			case "actorId", "actor_id":
				cur = node.ActorID
			case "message":
				cur = node.Message
			default:
				return nil
			}
		case error:
			if key != "message" {
				return nil
			}
			cur = node.Error()
		default:
			return nil
		}
	}
	return cur
}

// parseDelayKey reads a delay written as milliseconds ("1000") or as a Go
// duration ("1.5s").
func parseDelayKey(key string) (time.Duration, bool) {
	if ms, err := strconv.ParseInt(key, 10, 64); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond, true
	}
	if d, err := time.ParseDuration(key); err == nil && d >= 0 {
		return d, true
	}
	return 0, false
}

// delayFromValue converts a decoded delay parameter.
// Numbers are milliseconds; strings are durations or delay names.
func delayFromValue(v any) (d time.Duration, name string, ok bool) {
	switch val := v.(type) {
	case nil:
		return 0, "", true
	case time.Duration:
		return val, "", true
	case int:
		return time.Duration(val) * time.Millisecond, "", true
	case int64:
		return time.Duration(val) * time.Millisecond, "", true
	case float64:
		return time.Duration(val * float64(time.Millisecond)), "", true
	case string:
		if d, ok := parseDelayKey(val); ok {
			return d, "", true
		}
		return 0, val, true
	}
	return 0, "", false
}

func copyContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
