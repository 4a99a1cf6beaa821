package architecture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() Ruleset {
	return Ruleset{
		Layers: []Layer{
			{Name: "api", Globs: []string{"src/api/**/*.ts"}, CanImport: []string{"services", "models"}},
			{Name: "services", Globs: []string{"src/services/**/*.ts"}, CanImport: []string{"models"}, CannotImport: []string{"api"}},
			{Name: "models", Globs: []string{"src/models/**/*.ts"}, CanImport: []string{}},
		},
		SourceGlobs: []string{"**/*.ts"},
	}
}

func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestValidateAllowsPermittedImports(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"src/api/users.ts":      `import { UserService } from "../services/user_service";`,
		"src/services/user_service.ts": `import { User } from "../models/user";`,
		"src/models/user.ts":    `export class User {}`,
	})

	engine := New(testRules(), nil)
	result, err := engine.Validate(root, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Violations)
	assert.Equal(t, 3, result.Stats.FilesScanned)
	assert.Equal(t, 2, result.Stats.ImportsResolved)
}

func TestValidateFlagsForbiddenImport(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"src/services/sneaky.ts": `import { router } from "../api/router";`,
		"src/api/router.ts":      `export const router = 1;`,
	})

	engine := New(testRules(), nil)
	result, err := engine.Validate(root, nil)
	require.NoError(t, err)
	require.Len(t, result.Violations, 1)
	v := result.Violations[0]
	assert.Equal(t, "services", v.FromLayer)
	assert.Equal(t, "api", v.ToLayer)
	assert.Equal(t, "src/services/sneaky.ts", v.FromFile)
}

func TestValidateFlagsModelsImportingServices(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"src/models/bad.ts":           `import { svc } from "../services/user_service";`,
		"src/services/user_service.ts": `export const svc = 1;`,
	})

	engine := New(testRules(), nil)
	result, err := engine.Validate(root, nil)
	require.NoError(t, err)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "models", result.Violations[0].FromLayer)
}

func TestValidateReportsUnassignedFiles(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"scripts/tool.ts": `export const x = 1;`,
	})

	engine := New(testRules(), nil)
	result, err := engine.Validate(root, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Stats.Unassigned, "scripts/tool.ts")
}

func TestValidateDetectsCycle(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"src/services/a.ts": `import { b } from "./b";`,
		"src/services/b.ts": `import { a } from "./a";`,
	})

	engine := New(testRules(), nil)
	result, err := engine.Validate(root, nil)
	require.NoError(t, err)
	require.Len(t, result.Cycles, 1)
	cycle := result.Cycles[0]
	// The reported sequence is the exact import loop, closed on itself.
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	assert.ElementsMatch(t, []string{"src/services/a.ts", "src/services/b.ts"}, cycle[:len(cycle)-1])
}

func TestValidateIgnoresExternalPackages(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"src/models/user.ts": `import express from "express";`,
	})

	engine := New(testRules(), nil)
	result, err := engine.Validate(root, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Violations)
	assert.Equal(t, 0, result.Stats.ImportsResolved)
}

func TestSuggestPrefersAffinityLayer(t *testing.T) {
	engine := New(testRules(), nil)

	got, err := engine.Suggest("PaymentFlow", "service", []string{"models"})
	require.NoError(t, err)
	assert.Equal(t, "services", got.Layer)
	assert.Equal(t, "src/services/payment_flow_service.ts", got.Path)
}

func TestSuggestDoesNotDoubleSuffix(t *testing.T) {
	engine := New(testRules(), nil)

	got, err := engine.Suggest("PaymentService", "service", nil)
	require.NoError(t, err)
	assert.Equal(t, "src/services/payment_service.ts", got.Path)
}

func TestSuggestIgnoresExternalDeps(t *testing.T) {
	engine := New(testRules(), nil)

	base, err := engine.Suggest("Invoice", "model", []string{})
	require.NoError(t, err)

	withExternal, err := engine.Suggest("Invoice", "model", []string{"lodash", "express"})
	require.NoError(t, err)

	assert.Equal(t, base.Layer, withExternal.Layer)
}

func TestSuggestExcludesLayersThatCannotImportDeps(t *testing.T) {
	engine := New(testRules(), nil)

	// Only "api" may import "services".
	got, err := engine.Suggest("UsersEndpoint", "controller", []string{"services"})
	require.NoError(t, err)
	assert.Equal(t, "api", got.Layer)
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"src/api/**/*.ts", "src/api/users.ts", true},
		{"src/api/**/*.ts", "src/api/v2/users.ts", true},
		{"src/api/**/*.ts", "src/services/users.ts", false},
		{"**/*.go", "a/b/c.go", true},
		{"*.go", "main.go", true},
		{"*.go", "cmd/main.go", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, globMatch(tc.pattern, tc.path), "%s vs %s", tc.pattern, tc.path)
	}
}
