// Package tools implements the agent's tool surface: the built-in tools,
// the external MCP tool registry, and the dispatcher that routes model
// tool calls to either.
package tools

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/nebulacms/nebula/internal/chat"
	"github.com/nebulacms/nebula/internal/cms"
	"github.com/nebulacms/nebula/internal/log"
)

// Built-in tool names.
const (
	ToolGetWeather           = "get_weather"
	ToolWebSearch            = "web_search"
	ToolListCollections      = "list_cms_collections"
	ToolGetCollectionEntries = "get_collection_entries"
)

// WeatherResult is the simulated forecast returned by get_weather.
type WeatherResult struct {
	Location    string `json:"location"`
	Temperature int    `json:"temperature"`
	Condition   string `json:"condition"`
	Humidity    int    `json:"humidity"`
}

// TextResult wraps plain-text tool output.
type TextResult struct {
	Content string `json:"content"`
}

// DataResult wraps structured tool output.
type DataResult struct {
	Data any `json:"data"`
}

// ErrorResult is a tool failure expressed as a value, never as a Go error.
type ErrorResult struct {
	Error string `json:"error"`
}

var weatherConditions = []string{"Sunny", "Cloudy", "Rainy", "Snowy"}

// ContentSource exposes the CMS data the content tools read.
type ContentSource interface {
	Collections(ctx context.Context) ([]cms.Collection, error)
	Entries(ctx context.Context, collectionID string) ([]cms.Entry, error)
}

// Registry is an external tool provider. Both methods may fail; the
// executor absorbs those failures.
type Registry interface {
	Definitions(ctx context.Context) ([]chat.ToolDefinition, error)
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Executor dispatches tool calls to built-ins, the CMS, or the external
// registry. It implements chat.Executor: Execute never returns a Go error,
// and failures become error-shaped results so sibling tool calls stay
// isolated.
type Executor struct {
	builtins []chat.ToolDefinition
	source   ContentSource
	registry Registry
	logger   log.Logger

	// intN is rand.IntN, replaceable in tests.
	intN func(n int) int
}

// NewExecutor builds the executor. source and registry are both optional:
// without a source the content tools report the controller as unavailable,
// and without a registry unknown tools fail immediately.
func NewExecutor(source ContentSource, registry Registry, logger log.Logger) (*Executor, error) {
	builtins, err := builtinDefinitions()
	if err != nil {
		return nil, fmt.Errorf("build tool schemas: %w", err)
	}
	return &Executor{
		builtins: builtins,
		source:   source,
		registry: registry,
		logger:   logger,
		intN:     rand.IntN,
	}, nil
}

// Definitions returns the built-in tool schemas plus whatever the external
// registry currently advertises. A registry failure degrades to built-ins
// only.
func (e *Executor) Definitions(ctx context.Context) []chat.ToolDefinition {
	defs := make([]chat.ToolDefinition, len(e.builtins))
	copy(defs, e.builtins)

	if e.registry == nil {
		return defs
	}
	external, err := e.registry.Definitions(ctx)
	if err != nil {
		e.logger.Warn("tool registry unavailable, using built-ins only", "error", err)
		return defs
	}
	return append(defs, external...)
}

// Execute runs one tool call and returns its result value. Unknown names
// are forwarded to the external registry.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) any {
	switch name {
	case ToolGetWeather:
		location, _ := args["location"].(string)
		return WeatherResult{
			Location:    location,
			Temperature: e.intN(40) - 10,
			Condition:   weatherConditions[e.intN(len(weatherConditions))],
			Humidity:    e.intN(100),
		}

	case ToolWebSearch:
		query, _ := args["query"].(string)
		return TextResult{
			Content: fmt.Sprintf("Search result for %s: This is a placeholder for web search functionality.", query),
		}

	case ToolListCollections:
		if e.source == nil {
			return ErrorResult{Error: "Controller not available"}
		}
		collections, err := e.source.Collections(ctx)
		if err != nil {
			return ErrorResult{Error: err.Error()}
		}
		return DataResult{Data: collections}

	case ToolGetCollectionEntries:
		if e.source == nil {
			return ErrorResult{Error: "Controller not available"}
		}
		collectionID, _ := args["collectionId"].(string)
		entries, err := e.source.Entries(ctx, collectionID)
		if err != nil {
			return ErrorResult{Error: err.Error()}
		}
		return DataResult{Data: entries}

	default:
		if e.registry == nil {
			return ErrorResult{Error: fmt.Sprintf("Unknown tool: %s", name)}
		}
		content, err := e.registry.Call(ctx, name, args)
		if err != nil {
			e.logger.Warn("registry tool call failed", "tool", name, "error", err)
			return ErrorResult{Error: err.Error()}
		}
		return TextResult{Content: content}
	}
}
