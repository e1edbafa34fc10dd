// Package prompts loads the static instruction payloads sent to the model.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/satriahrh/landuse-agentic/domain"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Default returns the prompts shipped with the binary.
func Default() (domain.Prompts, error) {
	return parse(defaultPrompts)
}

// Load reads prompts from path. An empty path returns Default. Keys missing
// from the file keep their default text.
func Load(path string) (domain.Prompts, error) {
	base, err := Default()
	if err != nil {
		return domain.Prompts{}, err
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Prompts{}, fmt.Errorf("reading prompts: %w", err)
	}
	override, err := parse(data)
	if err != nil {
		return domain.Prompts{}, err
	}
	if override.SiteAnalysis != "" {
		base.SiteAnalysis = override.SiteAnalysis
	}
	return base, nil
}

func parse(data []byte) (domain.Prompts, error) {
	var p domain.Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return domain.Prompts{}, fmt.Errorf("parsing prompts: %w", err)
	}
	p.SiteAnalysis = strings.TrimRight(p.SiteAnalysis, "\n")
	return p, nil
}

// Validate reports prompts that cannot drive an analysis.
func Validate(p domain.Prompts) error {
	if strings.TrimSpace(p.SiteAnalysis) == "" {
		return errors.New("siteAnalysis prompt is empty")
	}
	return nil
}
