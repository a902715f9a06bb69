package transport

const (
	RestaurantSearchID = "op_5b1f3c1e-8d2a-4e0b-9c47-2f6a1d9e7a10"
	CurrentWeatherID   = "op_0c9e7a44-3b15-4f6d-8a21-6e5d4c3b2a19"
	DiscordMessageID   = "op_a7d2e9f0-1c4b-4b8e-b6f3-9e2d8c7b6a54"
	XKCDComicID        = "op_e41c2b7d-9a05-4c3e-8f16-7b2a9d0c5e38"
	SpotifySearchID    = "op_9f8e7d6c-5b4a-4392-8171-6e5f4d3c2b1a"
	DailyDigestID      = "wf_d3b07384-d113-4ec6-a5f9-12c1f8e0b7a2"
)

// DefaultCatalog returns the built-in demo catalog used in mock mode.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			ID:          RestaurantSearchID,
			Name:        "Search restaurants",
			Description: "Find restaurants in a city area, optionally filtered by cuisine",
			APIVendor:   "yelp.com",
			APIName:     "Yelp Fusion",
			Method:      "GET",
			Path:        "/businesses/search",
			Keywords:    []string{"restaurant", "food", "dining", "yelp"},
			Inputs: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"area":    map[string]any{"type": "string", "description": "City or neighbourhood"},
					"cuisine": map[string]any{"type": "string"},
					"limit":   map[string]any{"type": "integer"},
				},
				"required": []any{"area"},
			},
			Output: map[string]any{
				"businesses": []any{
					map[string]any{"name": "The Winding Stair", "area": "Dublin", "rating": 4.5},
					map[string]any{"name": "Chapter One", "area": "Dublin", "rating": 4.8},
				},
			},
		},
		{
			ID:          CurrentWeatherID,
			Name:        "Get current weather",
			Description: "Current weather conditions for a city",
			APIVendor:   "openweathermap.org",
			APIName:     "OpenWeatherMap",
			Method:      "GET",
			Path:        "/weather",
			Keywords:    []string{"weather", "forecast", "temperature"},
			Inputs: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city":  map[string]any{"type": "string"},
					"units": map[string]any{"type": "string", "enum": []any{"metric", "imperial"}},
				},
				"required": []any{"city"},
			},
			Output: map[string]any{"temperature": 14.2, "conditions": "light rain"},
		},
		{
			ID:          DiscordMessageID,
			Name:        "Send a channel message",
			Description: "Post a message to a Discord channel",
			APIVendor:   "discord.com",
			APIName:     "Discord",
			Method:      "POST",
			Path:        "/channels/{channel_id}/messages",
			Keywords:    []string{"message", "chat", "discord", "channel"},
			Inputs: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"channel_id": map[string]any{"type": "string"},
					"content":    map[string]any{"type": "string"},
				},
				"required": []any{"channel_id", "content"},
			},
			Output: map[string]any{"id": "1187349204", "delivered": true},
		},
		{
			ID:          XKCDComicID,
			Name:        "Get current comic",
			Description: "Fetch the latest xkcd comic",
			APIVendor:   "xkcd.com",
			APIName:     "xkcd",
			Method:      "GET",
			Path:        "/info.0.json",
			Keywords:    []string{"comic", "xkcd", "webcomic"},
			Inputs:      map[string]any{"type": "object", "properties": map[string]any{}},
			Output:      map[string]any{"num": 2950, "title": "Unit Conversion"},
		},
		{
			ID:          SpotifySearchID,
			Name:        "Search tracks",
			Description: "Search the Spotify catalog for music tracks",
			APIVendor:   "spotify.com",
			APIName:     "Spotify Web API",
			Method:      "GET",
			Path:        "/search",
			Keywords:    []string{"music", "song", "track", "playlist", "spotify"},
			Inputs: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"q":     map[string]any{"type": "string"},
					"limit": map[string]any{"type": "integer"},
				},
				"required": []any{"q"},
			},
			Output: map[string]any{"tracks": []any{"Zombie", "Linger"}},
		},
		{
			ID:          DailyDigestID,
			Name:        "Daily digest",
			Description: "Post today's weather and comic to a Discord channel",
			APIVendor:   "discord.com",
			APIName:     "Discord",
			Keywords:    []string{"digest", "weather", "comic", "discord"},
			Inputs: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city":       map[string]any{"type": "string"},
					"channel_id": map[string]any{"type": "string"},
				},
				"required": []any{"city", "channel_id"},
			},
			Output: map[string]any{"posted": true},
			Steps:  []string{"fetch_weather", "fetch_comic", "post_message"},
		},
	}
}
