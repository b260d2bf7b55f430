package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/nebulacms/nebula/internal/chat"
)

// Input shapes for the built-in tools. Schemas are inferred from these
// structs; omitempty marks a field optional.

type weatherInput struct {
	Location string `json:"location" jsonschema:"The city or location name"`
}

type webSearchInput struct {
	Query string `json:"query,omitempty" jsonschema:"Search query for Google search"`
	URL   string `json:"url,omitempty" jsonschema:"Specific URL to fetch content from (alternative to search)"`
}

type listCollectionsInput struct{}

type collectionEntriesInput struct {
	CollectionID string `json:"collectionId" jsonschema:"The UUID of the collection"`
}

func builtinDefinitions() ([]chat.ToolDefinition, error) {
	weather, err := schemaFor[weatherInput]()
	if err != nil {
		return nil, err
	}
	webSearch, err := schemaFor[webSearchInput]()
	if err != nil {
		return nil, err
	}
	listCollections, err := schemaFor[listCollectionsInput]()
	if err != nil {
		return nil, err
	}
	collectionEntries, err := schemaFor[collectionEntriesInput]()
	if err != nil {
		return nil, err
	}

	return []chat.ToolDefinition{
		{
			Type: "function",
			Function: chat.FunctionDef{
				Name:        ToolGetWeather,
				Description: "Get current weather information for a location",
				Parameters:  weather,
			},
		},
		{
			Type: "function",
			Function: chat.FunctionDef{
				Name:        ToolWebSearch,
				Description: "Search the web using Google or fetch content from a specific URL",
				Parameters:  webSearch,
			},
		},
		{
			Type: "function",
			Function: chat.FunctionDef{
				Name:        ToolListCollections,
				Description: "List all content collections (schemas) defined in the CMS",
				Parameters:  listCollections,
			},
		},
		{
			Type: "function",
			Function: chat.FunctionDef{
				Name:        ToolGetCollectionEntries,
				Description: "Get all content entries for a specific collection",
				Parameters:  collectionEntries,
			},
		},
	}, nil
}

// schemaFor infers a JSON schema from the input struct and renders it in
// the raw form the completion request carries.
func schemaFor[T any]() (json.RawMessage, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return raw, nil
}
