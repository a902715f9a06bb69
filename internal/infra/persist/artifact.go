package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/mod/semver"

	"jentic/internal/domain"
)

// Store keeps loaded execution metadata across process restarts.
type Store interface {
	Save(ctx context.Context, metas []domain.ExecutionMetadata) error
	Load(ctx context.Context) ([]domain.ExecutionMetadata, error)
	Close() error
}

// Artifact is the jentic.json document. Coding agents commit it next to
// their code so later sessions can execute without a fresh load.
type Artifact struct {
	Version    string                              `json:"version"`
	CapturedAt time.Time                           `json:"captured_at"`
	Metadata   map[string]domain.ExecutionMetadata `json:"metadata"`
}

// NewArtifact captures metas at the given time.
func NewArtifact(metas []domain.ExecutionMetadata, capturedAt time.Time) Artifact {
	artifact := Artifact{
		Version:    domain.ArtifactVersion,
		CapturedAt: capturedAt.UTC(),
		Metadata:   make(map[string]domain.ExecutionMetadata, len(metas)),
	}
	for _, meta := range metas {
		artifact.Metadata[meta.ID.String()] = meta.Clone()
	}
	return artifact
}

// Entries returns the metadata sorted by identifier. Entries without a load
// time, or loaded after the capture, take the capture time so the cache TTL
// counts from when the artifact was written at the latest.
func (a Artifact) Entries() ([]domain.ExecutionMetadata, error) {
	out := make([]domain.ExecutionMetadata, 0, len(a.Metadata))
	for key, meta := range a.Metadata {
		id, err := domain.ParseOperationID(key)
		if err != nil {
			return nil, fmt.Errorf("artifact entry %q: %w", key, err)
		}
		meta.ID = id
		if !a.CapturedAt.IsZero() && (meta.LoadedAt.IsZero() || meta.LoadedAt.After(a.CapturedAt)) {
			meta.LoadedAt = a.CapturedAt
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// DecodeArtifact parses a jentic.json document and checks its format
// version. Any v1.x document is accepted.
func DecodeArtifact(data []byte) (Artifact, error) {
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	if err := checkVersion(artifact.Version); err != nil {
		return Artifact{}, err
	}
	return artifact, nil
}

// EncodeArtifact renders the artifact as indented JSON.
func EncodeArtifact(artifact Artifact) ([]byte, error) {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return append(data, '\n'), nil
}

func checkVersion(version string) error {
	if !semver.IsValid(version) {
		return domain.E(domain.CodeInvalidArgument, "decode artifact", fmt.Sprintf("artifact version %q is not a semantic version", version), nil)
	}
	if semver.Major(version) != semver.Major(domain.ArtifactVersion) {
		return domain.E(domain.CodeInvalidArgument, "decode artifact", fmt.Sprintf("artifact version %s is not compatible with %s", version, domain.ArtifactVersion), nil)
	}
	return nil
}

func encodeEntry(meta domain.ExecutionMetadata) ([]byte, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata %s: %w", meta.ID, err)
	}
	return data, nil
}

func decodeEntry(key string, data []byte) (domain.ExecutionMetadata, error) {
	var meta domain.ExecutionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.ExecutionMetadata{}, fmt.Errorf("decode metadata %s: %w", key, err)
	}
	id, err := domain.ParseOperationID(key)
	if err != nil {
		return domain.ExecutionMetadata{}, err
	}
	meta.ID = id
	return meta, nil
}
