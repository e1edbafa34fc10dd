package domain

// Prompts holds the static instruction payloads handed to the model verbatim.
type Prompts struct {
	SiteAnalysis string `yaml:"siteAnalysis"`
}
