package generation

// FunctionSpec describes the structured output a caller expects. It is
// rendered into the provider's function-declaration schema.
type FunctionSpec struct {
	// Name is the function name the provider should call.
	Name string
	// Description tells the model when to call the function.
	Description string
	// Parameters maps field names to JSON-schema-ish property maps,
	// e.g. {"agreementScore": {"type": "number"}}.
	Parameters map[string]any
	// Required lists the parameter names the caller depends on.
	Required []string
}

// Request is a single structured-generation request.
type Request struct {
	// Prompt is the instruction text.
	Prompt string
	// Function, when set, asks the provider for a structured call
	// instead of free text.
	Function *FunctionSpec
	// Temperature overrides the client's sampling temperature when > 0.
	Temperature float64
	// MaxTokens caps the response length when > 0.
	MaxTokens int
}

// FunctionCall is a named structured reply.
type FunctionCall struct {
	// Name is the called function name.
	Name string
	// Args holds the typed arguments.
	Args map[string]any
}

// Result is the provider's reply: free text, a function call, or both.
type Result struct {
	// Text is the free-text portion, if any.
	Text string
	// Call is the structured portion, if any.
	Call *FunctionCall
}
