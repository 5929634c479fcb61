package brain

import (
	"github.com/alexos/chainbot/llms"
	"github.com/alexos/chainbot/pkg/registry"
)

// Persona defines how an agent talks to a completion provider.
type Persona struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	Temperature  float64  `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	Capabilities []string `yaml:"capabilities"`
}

// PersonaStore holds the named personas. A new store is seeded with the
// built-in defaults.
type PersonaStore struct {
	*registry.BaseRegistry[*Persona]
}

func NewPersonaStore() *PersonaStore {
	s := &PersonaStore{
		BaseRegistry: registry.NewBaseRegistry[*Persona](),
	}
	for _, p := range defaultPersonas() {
		_ = s.Register(p.Name, p)
	}
	return s
}

// Add registers or replaces a persona.
func (s *PersonaStore) Add(p *Persona) error {
	return s.Replace(p.Name, p)
}

func defaultPersonas() []*Persona {
	return []*Persona{
		{
			Name:         "general_assistant",
			Description:  "Helpful general-purpose assistant",
			SystemPrompt: "You are a helpful AI assistant. Provide clear, accurate, and useful responses.",
			Provider:     llms.ProviderOpenAI,
			Model:        "gpt-4o",
			Temperature:  0.7,
			MaxTokens:    2048,
			Capabilities: []string{"conversation", "qa", "summarization"},
		},
		{
			Name:         "code_assistant",
			Description:  "Programming and code review specialist",
			SystemPrompt: "You are an expert software engineer. Write clean, well-documented code and explain your reasoning.",
			Provider:     llms.ProviderOpenAI,
			Model:        "gpt-4o",
			Temperature:  0.3,
			MaxTokens:    4096,
			Capabilities: []string{"code_generation", "code_review", "debugging"},
		},
		{
			Name:         "creative_writer",
			Description:  "Creative writing on local models",
			SystemPrompt: "You are a creative writer. Produce engaging, original prose with a distinctive voice.",
			Provider:     llms.ProviderMacLink,
			Model:        "llama2",
			Temperature:  0.9,
			MaxTokens:    2048,
			Capabilities: []string{"creative_writing", "storytelling"},
		},
		{
			Name:         "analyst",
			Description:  "Data analysis and structured reasoning",
			SystemPrompt: "You are a precise analyst. Break problems down, show your reasoning, and state conclusions with their supporting evidence.",
			Provider:     llms.ProviderOpenAI,
			Model:        "gpt-4o",
			Temperature:  0.2,
			MaxTokens:    3072,
			Capabilities: []string{"analysis", "reasoning", "reporting"},
		},
	}
}
