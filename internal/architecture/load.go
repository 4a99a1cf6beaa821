package architecture

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadRules reads a workspace's layer-rule file. rulesFile may be absolute
// or relative to workspaceRoot. A missing or unparsable file returns an
// empty Ruleset: validation then reports everything unassigned instead of
// failing the tool call.
func LoadRules(workspaceRoot, rulesFile string) Ruleset {
	path := rulesFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspaceRoot, rulesFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Ruleset{}
	}
	var rules Ruleset
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Ruleset{}
	}
	return rules
}
