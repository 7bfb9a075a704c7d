package agents

import (
	"embed"
	"fmt"
)

//go:embed prompts/*.md
var promptFiles embed.FS

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(name string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", name))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
	}
	return string(content), nil
}

func mustLoadPrompt(name string) string {
	p, err := LoadPrompt(name)
	if err != nil {
		panic(err)
	}
	return p
}
