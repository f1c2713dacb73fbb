package generation

import (
	"encoding/json"
	"fmt"
)

func init() {
	RegisterDialect("gemini", &geminiDialect{})
}

// geminiDialect implements the Google generateContent wire format with
// function-calling via tools/functionDeclarations.
type geminiDialect struct{}

func (g *geminiDialect) Name() string { return "gemini" }

func (g *geminiDialect) GeneratePath(model string) string {
	return fmt.Sprintf("/v1beta/models/%s:generateContent", model)
}

// geminiRequest mirrors the generateContent request body.
type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *geminiGenConfig  `json:"generationConfig,omitempty"`
	Tools            []geminiTool      `json:"tools,omitempty"`
	ToolConfig       *geminiToolConfig `json:"toolConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type geminiToolConfig struct {
	FunctionCallingConfig geminiFunctionCallingConfig `json:"functionCallingConfig"`
}

type geminiFunctionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

func (g *geminiDialect) BuildRequest(req Request, temperature float64) (any, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("gemini: prompt is required")
	}

	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	body := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: req.Prompt}}},
		},
		GenerationConfig: &geminiGenConfig{
			Temperature:     temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	if req.Function != nil {
		body.Tools = []geminiTool{{
			FunctionDeclarations: []geminiFunctionDecl{{
				Name:        req.Function.Name,
				Description: req.Function.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": req.Function.Parameters,
					"required":   req.Function.Required,
				},
			}},
		}}
		// Force a structured reply so required-field validation has
		// something to validate.
		body.ToolConfig = &geminiToolConfig{
			FunctionCallingConfig: geminiFunctionCallingConfig{
				Mode:                 "ANY",
				AllowedFunctionNames: []string{req.Function.Name},
			},
		}
	}

	return body, nil
}

// geminiResponse mirrors the generateContent response body.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *geminiDialect) ParseResponse(body []byte) (*Result, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: response has no candidates")
	}

	result := &Result{}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			result.Text += part.Text
		}
		if part.FunctionCall != nil && result.Call == nil {
			result.Call = &FunctionCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}
		}
	}
	return result, nil
}
