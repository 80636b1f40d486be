package capability

import "strings"

// Capability strings are dotted paths under the "weft." namespace:
//
//	weft.<primary>.<item_type>.<specifics...>
//
// where primary is one of execute/search/load/sign and item_type is one
// of tool/directive/knowledge. A trailing ".*" is a prefix wildcard and
// "weft.*" grants everything.

var primaryTools = []string{"execute", "search", "load", "sign"}

var itemTypes = map[string]struct{}{
	"tool": {}, "directive": {}, "knowledge": {},
}

// primaryImplies encodes structural implication: the ability to execute
// an item implies the ability to search for and load it, and signing an
// item implies loading it.
var primaryImplies = map[string][]string{
	"execute": {"search", "load"},
	"sign":    {"load"},
}

type parsedCap struct {
	primary   string
	itemType  string
	specifics string
	wildcard  bool
}

func parseCapability(cap string) (parsedCap, bool) {
	rest, ok := strings.CutPrefix(cap, "weft.")
	if !ok {
		return parsedCap{}, false
	}
	parts := strings.SplitN(rest, ".", 3)
	if parts[0] == "*" {
		return parsedCap{primary: "*", itemType: "*", specifics: "*", wildcard: true}, true
	}
	primary := parts[0]
	if !isPrimary(primary) {
		return parsedCap{}, false
	}
	if len(parts) == 1 || parts[1] == "*" {
		return parsedCap{primary: primary, itemType: "*", specifics: "*", wildcard: true}, true
	}
	itemType := parts[1]
	if _, ok := itemTypes[itemType]; !ok {
		return parsedCap{}, false
	}
	if len(parts) == 2 {
		return parsedCap{primary: primary, itemType: itemType, specifics: "*", wildcard: true}, true
	}
	specifics := parts[2]
	return parsedCap{
		primary:   primary,
		itemType:  itemType,
		specifics: specifics,
		wildcard:  strings.HasSuffix(specifics, "*"),
	}, true
}

func isPrimary(p string) bool {
	for _, known := range primaryTools {
		if p == known {
			return true
		}
	}
	return false
}

// capMatches reports whether one granted pattern satisfies a required
// capability. Exact match, trailing ".*" prefix match, and the implicit
// wildcard of a bare primary ("weft.execute" ≡ "weft.execute.*").
func capMatches(granted, required string) bool {
	if granted == required {
		return true
	}
	if prefix, ok := strings.CutSuffix(granted, ".*"); ok {
		return required == prefix || strings.HasPrefix(required, prefix+".")
	}
	g, ok := parseCapability(granted)
	if !ok {
		return false
	}
	r, ok := parseCapability(required)
	if !ok {
		return false
	}
	if g.wildcard && g.specifics == "*" {
		if g.primary == "*" {
			return true
		}
		if g.primary == r.primary {
			return g.itemType == "*" || g.itemType == r.itemType
		}
	}
	return false
}

// Expand applies structural implication until a fixed point: execute
// grants imply search+load at the same specificity, sign implies load,
// and god mode implies every primary.
func Expand(caps []string) []string {
	expanded := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		expanded[c] = struct{}{}
	}
	changed := true
	for changed {
		changed = false
		for cap := range expanded {
			parsed, ok := parseCapability(cap)
			if !ok {
				continue
			}
			if parsed.primary == "*" {
				for _, p := range primaryTools {
					if add(expanded, "weft."+p+".*") {
						changed = true
					}
				}
				continue
			}
			for _, implied := range primaryImplies[parsed.primary] {
				var next string
				switch {
				case parsed.itemType == "*":
					next = "weft." + implied + ".*"
				case parsed.specifics == "*":
					next = "weft." + implied + "." + parsed.itemType + ".*"
				default:
					next = "weft." + implied + "." + parsed.itemType + "." + parsed.specifics
				}
				if add(expanded, next) {
					changed = true
				}
			}
		}
	}
	out := make([]string, 0, len(expanded))
	for c := range expanded {
		out = append(out, c)
	}
	return out
}

func add(set map[string]struct{}, cap string) bool {
	if _, ok := set[cap]; ok {
		return false
	}
	set[cap] = struct{}{}
	return true
}

// MatchAny reports whether the granted set (after structural expansion)
// satisfies the required capability.
func MatchAny(granted []string, required string) bool {
	for _, g := range Expand(granted) {
		if capMatches(g, required) {
			return true
		}
	}
	return false
}

// MatchAll checks every required capability and returns the missing ones.
func MatchAll(granted, required []string) (bool, []string) {
	var missing []string
	for _, r := range required {
		if !MatchAny(granted, r) {
			missing = append(missing, r)
		}
	}
	return len(missing) == 0, missing
}

// ItemIDToCap converts an item reference to its capability string, e.g.
// ("execute", "tool", "weft/file-system/fs_write") becomes
// "weft.execute.tool.weft.file-system.fs_write".
func ItemIDToCap(primary, itemType, itemID string) string {
	return "weft." + primary + "." + itemType + "." + strings.ReplaceAll(itemID, "/", ".")
}
