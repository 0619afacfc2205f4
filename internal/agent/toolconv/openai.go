package toolconv

import (
	"encoding/json"

	"github.com/ironclaw/ironclaw/internal/agent"
	openai "github.com/sashabaranov/go-openai"
)

// ToOpenAITools converts internal tool definitions to OpenAI function schema.
func ToOpenAITools(tools []agent.Tool) []openai.Tool {
	return toOpenAITools(tools, false)
}

// ToOpenAIToolsStrict converts tool definitions for strict mode, where the
// provider validates arguments against the schema exactly: schemas are run
// through NormalizeStrictSchema and the function definition is flagged
// strict.
func ToOpenAIToolsStrict(tools []agent.Tool) []openai.Tool {
	return toOpenAITools(tools, true)
}

func toOpenAITools(tools []agent.Tool, strict bool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema(), &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		if strict {
			schemaMap = NormalizeStrictSchema(schemaMap)
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaMap,
				Strict:      strict,
			},
		}
	}
	return result
}
