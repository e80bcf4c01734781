// Package modeldata is a small catalog of list prices for the default models
// of the built-in vendors. Prices are USD per 1k tokens.
package modeldata

type Pricing struct {
	Prompt     float64
	Completion float64
}

type Info struct {
	Name          string
	ContextWindow int
	ImageCapable  bool
	Pricing       Pricing
}

var KnownModels = map[string]Info{
	// OpenAI
	"gpt-4o": {
		Name:          "GPT-4o",
		ContextWindow: 128000,
		ImageCapable:  true,
		Pricing:       Pricing{Prompt: 0.0025, Completion: 0.01},
	},
	"gpt-4o-mini": {
		Name:          "GPT-4o mini",
		ContextWindow: 128000,
		ImageCapable:  true,
		Pricing:       Pricing{Prompt: 0.00015, Completion: 0.0006},
	},

	// Groq
	"llama-3.1-70b-versatile": {
		Name:          "Llama 3.1 70B",
		ContextWindow: 131072,
		Pricing:       Pricing{Prompt: 0.00059, Completion: 0.00079},
	},
	"llama3-8b-8192": {
		Name:          "Llama 3 8B",
		ContextWindow: 8192,
		Pricing:       Pricing{Prompt: 0.00005, Completion: 0.00008},
	},

	// DeepSeek
	"deepseek-chat": {
		Name:          "DeepSeek V3",
		ContextWindow: 65536,
		Pricing:       Pricing{Prompt: 0.00027, Completion: 0.0011},
	},
	"deepseek-reasoner": {
		Name:          "DeepSeek R1",
		ContextWindow: 65536,
		Pricing:       Pricing{Prompt: 0.00055, Completion: 0.00219},
	},

	// Google
	"gemini-1.5-flash": {
		Name:          "Gemini 1.5 Flash",
		ContextWindow: 1048576,
		ImageCapable:  true,
		Pricing:       Pricing{Prompt: 0.000075, Completion: 0.0003},
	},
	"gemini-1.5-pro": {
		Name:          "Gemini 1.5 Pro",
		ContextWindow: 2097152,
		ImageCapable:  true,
		Pricing:       Pricing{Prompt: 0.00125, Completion: 0.005},
	},
}

// Cost prices a call against the catalog. ok is false for unknown models.
func Cost(model string, tokensIn, tokensOut int) (cost float64, ok bool) {
	info, ok := KnownModels[model]
	if !ok {
		return 0, false
	}
	return float64(tokensIn)/1000*info.Pricing.Prompt + float64(tokensOut)/1000*info.Pricing.Completion, true
}
