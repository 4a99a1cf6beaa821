package tools

import (
	"context"

	"github.com/codeintel/server/internal/architecture"
	"github.com/codeintel/server/internal/xerrors"
)

// RulesProvider resolves the layer ruleset for a workspace root; the
// entrypoint wires it to config loading so rules can live per-project.
type RulesProvider func(workspaceRoot string) architecture.Ruleset

// ArchValidate checks the workspace's imports against its layer rules.
type ArchValidate struct {
	Rules RulesProvider
}

func (t *ArchValidate) Name() string            { return "arch_validate" }
func (t *ArchValidate) RequiresWorkspace() bool { return true }

func (t *ArchValidate) Execute(ctx context.Context, call Call) (interface{}, error) {
	if t.Rules == nil {
		return nil, xerrors.ConfigErrorf("no architecture rules configured")
	}
	engine := architecture.New(t.Rules(call.Project.RootPath), nil)
	result, err := engine.Validate(call.Project.RootPath, stringSliceParam(call.Params, "files"))
	if err != nil {
		return nil, err
	}
	if call.Profile() == "compact" {
		return map[string]interface{}{
			"violations": len(result.Violations),
			"cycles":     len(result.Cycles),
			"stats":      result.Stats,
		}, nil
	}
	return result, nil
}

// ArchSuggest recommends a layer and path for a new symbol.
type ArchSuggest struct {
	Rules RulesProvider
}

func (t *ArchSuggest) Name() string            { return "arch_suggest" }
func (t *ArchSuggest) RequiresWorkspace() bool { return true }

func (t *ArchSuggest) Execute(ctx context.Context, call Call) (interface{}, error) {
	if t.Rules == nil {
		return nil, xerrors.ConfigErrorf("no architecture rules configured")
	}
	name := stringParam(call.Params, "code_name")
	if name == "" {
		return nil, xerrors.InvalidArgumentsf("code_name is required")
	}
	engine := architecture.New(t.Rules(call.Project.RootPath), nil)
	return engine.Suggest(name, stringParam(call.Params, "code_type"), stringSliceParam(call.Params, "deps"))
}
