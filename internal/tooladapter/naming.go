package tooladapter

import (
	"fmt"
	"sort"
	"strings"

	"jentic/internal/domain"
)

const maxToolNameLength = 64

// toolName derives the unsanitized base name for an operation.
func toolName(meta domain.ExecutionMetadata) string {
	if strings.TrimSpace(meta.Name) != "" {
		return meta.Name
	}
	if meta.Method != "" && meta.Path != "" {
		return strings.Join([]string{meta.APIName, meta.Method, meta.Path}, "_")
	}
	return meta.ID.String()
}

// sanitizeName maps a name onto [a-zA-Z0-9_-]{1,64}, the intersection of
// what the supported vendors accept.
func sanitizeName(raw string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if len(name) > maxToolNameLength {
		name = strings.TrimRight(name[:maxToolNameLength], "_")
	}
	return name
}

type namedMetadata struct {
	name string
	meta domain.ExecutionMetadata
}

// assignNames gives every entry a unique tool name. Entries are processed in
// identifier order so the same cache contents always produce the same names;
// later collisions get an identifier suffix.
func assignNames(metas []domain.ExecutionMetadata) []namedMetadata {
	sorted := append([]domain.ExecutionMetadata(nil), metas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	used := make(map[string]struct{}, len(sorted))
	out := make([]namedMetadata, 0, len(sorted))
	for _, meta := range sorted {
		base := sanitizeName(toolName(meta))
		if base == "" {
			base = sanitizeName(meta.ID.String())
		}
		name := base
		if _, taken := used[name]; taken {
			name = withSuffix(base, sanitizeName(shortID(meta.ID)))
		}
		for n := 2; ; n++ {
			if _, taken := used[name]; !taken {
				break
			}
			name = withSuffix(base, fmt.Sprintf("%s_%d", sanitizeName(shortID(meta.ID)), n))
		}
		used[name] = struct{}{}
		out = append(out, namedMetadata{name: name, meta: meta})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func withSuffix(base, suffix string) string {
	limit := maxToolNameLength - len(suffix) - 1
	if limit < 1 {
		if len(suffix) > maxToolNameLength {
			return suffix[:maxToolNameLength]
		}
		return suffix
	}
	if len(base) > limit {
		base = strings.TrimRight(base[:limit], "_")
	}
	return base + "_" + suffix
}

func shortID(id domain.OperationID) string {
	uuid := strings.ReplaceAll(id.UUID, "-", "")
	if len(uuid) > 8 {
		uuid = uuid[:8]
	}
	return uuid
}
