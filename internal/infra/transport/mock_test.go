package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jentic/internal/domain"
)

func mustID(t *testing.T, raw string) domain.OperationID {
	t.Helper()
	id, err := domain.ParseOperationID(raw)
	require.NoError(t, err)
	return id
}

func TestMockTransportSearchRanksRestaurantFirst(t *testing.T) {
	tr, err := NewMockTransport(MockOptions{})
	require.NoError(t, err)

	res, err := tr.Search(context.Background(), domain.SearchQuery{Text: "find restaurants in Dublin", Keywords: []string{"restaurant"}, Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	require.Equal(t, mustID(t, RestaurantSearchID), res.Hits[0].ID)
	require.Equal(t, "Yelp Fusion", res.Hits[0].APIName)
	require.EqualValues(t, 1, tr.SearchCalls())
}

func TestMockTransportSearchFilters(t *testing.T) {
	tr, err := NewMockTransport(MockOptions{})
	require.NoError(t, err)

	res, err := tr.Search(context.Background(), domain.SearchQuery{APIs: []string{"discord"}})
	require.NoError(t, err)
	require.ElementsMatch(t, []domain.OperationID{mustID(t, DiscordMessageID), mustID(t, DailyDigestID)}, res.IDs())

	res, err = tr.Search(context.Background(), domain.SearchQuery{Text: "quantum chromodynamics"})
	require.NoError(t, err)
	require.Empty(t, res.Hits)

	res, err = tr.Search(context.Background(), domain.SearchQuery{Keywords: []string{"weather"}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	require.Equal(t, 2, res.TotalCount)
}

func TestMockTransportLoadAndExecute(t *testing.T) {
	tr, err := NewMockTransport(MockOptions{})
	require.NoError(t, err)

	restaurant := mustID(t, RestaurantSearchID)
	digest := mustID(t, DailyDigestID)
	unknown := domain.NewOperationID("nope")

	resp, err := tr.Load(context.Background(), []domain.OperationID{restaurant, digest, unknown})
	require.NoError(t, err)
	require.Len(t, resp.Metadata, 2)
	require.True(t, resp.Metadata[restaurant].InputSchema.IsRequired("area"))

	res, err := tr.Execute(context.Background(), domain.ExecutionRequest{ID: restaurant, Inputs: map[string]any{"area": "Dublin"}})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Output, "businesses")

	res, err = tr.Execute(context.Background(), domain.ExecutionRequest{ID: digest, Inputs: map[string]any{"city": "Dublin", "channel_id": "1"}})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.StepResults, 3)

	res, err = tr.Execute(context.Background(), domain.ExecutionRequest{ID: unknown})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, domain.CodeNotFound, res.Error.Code)

	require.EqualValues(t, 1, tr.LoadCalls())
	require.EqualValues(t, 3, tr.ExecuteCalls())
}

func TestMockTransportListAPIs(t *testing.T) {
	tr, err := NewMockTransport(MockOptions{})
	require.NoError(t, err)

	apis, err := tr.ListAPIs(context.Background())
	require.NoError(t, err)
	require.Len(t, apis, 5)
	require.Equal(t, "Discord", apis[0].Name)
}

func TestMockTransportLatencyHonorsContext(t *testing.T) {
	tr, err := NewMockTransport(MockOptions{Latency: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = tr.Search(ctx, domain.SearchQuery{Text: "weather"})
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `entries:
  - id: op_11111111-2222-3333-4444-555555555555
    name: Create issue
    api_name: GitHub
    api_vendor: github.com
    keywords: [issue, github]
    inputs:
      type: object
      properties:
        title: {type: string}
      required: [title]
    fail: rate limited
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	entries, err := LoadCatalogFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	tr, err := NewMockTransport(MockOptions{Entries: entries})
	require.NoError(t, err)
	id := mustID(t, "op_11111111-2222-3333-4444-555555555555")

	resp, err := tr.Load(context.Background(), []domain.OperationID{id})
	require.NoError(t, err)
	require.True(t, resp.Metadata[id].InputSchema.IsRequired("title"))

	res, err := tr.Execute(context.Background(), domain.ExecutionRequest{ID: id, Inputs: map[string]any{"title": "x"}})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "rate limited", res.Error.Message)
}

func TestNewMockTransportRejectsBadCatalog(t *testing.T) {
	_, err := NewMockTransport(MockOptions{Entries: []CatalogEntry{{ID: "nope"}}})
	require.Error(t, err)

	dup := CatalogEntry{ID: XKCDComicID}
	_, err = NewMockTransport(MockOptions{Entries: []CatalogEntry{dup, dup}})
	require.Error(t, err)
}
