package tools

import (
	"context"
	"encoding/json"

	"github.com/MimeLyc/carshop-agent/internal/catalog"
	"github.com/google/jsonschema-go/jsonschema"
)

const (
	DisplayRecommendationsName = "displayCarRecommendations"

	MaxRecommendations = 3

	searchFirst = "Items array is required and must contain at least one car object from searchToyotaTrims results."
	tooMany     = "At most 3 cars can be displayed. Select 1-3 items from the searchToyotaTrims results."
)

type displayArgs struct {
	Items []catalog.CarCard `json:"items"`
}

// DisplayRecommendations marks 1 to 3 search results for display. It does
// no lookups; it only re-checks what the model claims came from a search.
type DisplayRecommendations struct{}

func NewDisplayRecommendations() *DisplayRecommendations {
	return &DisplayRecommendations{}
}

func (t *DisplayRecommendations) Name() string { return DisplayRecommendationsName }

func (t *DisplayRecommendations) Description() string {
	return "Display up to 3 car recommendations as visual cards in the chat interface. IMPORTANT: You MUST first " +
		"call searchToyotaTrims to get car results, then select 1-3 items from the 'items' array in the search " +
		"results, and pass those exact items to this tool. The items parameter is REQUIRED and must be an array " +
		"of car objects from the searchToyotaTrims results."
}

func (t *DisplayRecommendations) Schema() *jsonschema.Schema {
	items := &jsonschema.Schema{
		Type:        "array",
		Items:       carCardSchema(),
		MinItems:    count(1),
		MaxItems:    count(MaxRecommendations),
		Description: "REQUIRED: Array of car objects from searchToyotaTrims results. Must contain 1-3 items. Each item must have trim_id, model, make, and other car properties.",
	}
	return object([]string{"items"}, map[string]*jsonschema.Schema{"items": items})
}

// InvalidArgs answers every malformed call with the search-first instruction.
func (t *DisplayRecommendations) InvalidArgs(details []string) ToolResult {
	return rejectDisplay(searchFirst, details)
}

func (t *DisplayRecommendations) Execute(_ context.Context, args json.RawMessage) (ToolResult, error) {
	var in displayArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return rejectDisplay(searchFirst, []string{err.Error()}), nil
	}
	switch {
	case len(in.Items) == 0:
		return rejectDisplay(searchFirst, nil), nil
	case len(in.Items) > MaxRecommendations:
		return rejectDisplay(tooMany, nil), nil
	}
	for _, item := range in.Items {
		if item.TrimID <= 0 {
			return rejectDisplay(searchFirst, []string{"every item needs the trim_id from the search results"}), nil
		}
	}
	return JSONResult(catalog.SearchResult{Items: in.Items, Count: len(in.Items)})
}

func rejectDisplay(msg string, details []string) ToolResult {
	payload := map[string]any{
		"error": msg,
		"items": []catalog.CarCard{},
		"count": 0,
	}
	if len(details) > 0 {
		payload["details"] = details
	}
	return ErrorResult(payload)
}
