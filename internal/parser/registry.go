package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/codeintel/server/internal/models"
)

// Registry is the Parser: given a project-relative path and its absolute
// location on disk, it returns a models.ParsedFile. Files whose extension
// has no registered extractor still get a FILE node - just with no
// symbols or imports - so the graph never silently drops a file.
type Registry struct{}

func NewRegistry() *Registry {
	return &Registry{}
}

// ParseFile reads absPath, detects its language, and extracts symbols and
// imports. relPath is what gets stored as the FILE node's path (and what
// every derived node id is built from), kept distinct from absPath so the
// same project can be mounted at different roots across machines.
func (r *Registry) ParseFile(projectID, relPath, absPath string) models.ParsedFile {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return models.ParsedFile{ProjectID: projectID, Path: relPath, Err: err}
	}
	hash := contentHash(content)

	lang := DetectLanguage(relPath)
	if lang == "" {
		return models.ParsedFile{
			ProjectID:   projectID,
			Path:        relPath,
			Language:    "unknown",
			ContentHash: hash,
		}
	}

	result, err := ParseFile(absPath)
	if err != nil {
		return models.ParsedFile{ProjectID: projectID, Path: relPath, Language: lang, ContentHash: hash, Err: err}
	}
	if result.Error != nil {
		return models.ParsedFile{ProjectID: projectID, Path: relPath, Language: lang, ContentHash: hash, Err: result.Error}
	}

	pf := models.ParsedFile{
		ProjectID:   projectID,
		Path:        relPath,
		Language:    lang,
		ContentHash: hash,
	}
	for _, e := range result.Entities {
		switch e.Type {
		case "function":
			pf.Symbols = append(pf.Symbols, models.Symbol{
				Kind:      models.LabelFunction,
				Name:      e.Name,
				StartLine: e.StartLine,
				EndLine:   e.EndLine,
				Signature: e.Signature,
			})
		case "class":
			pf.Symbols = append(pf.Symbols, models.Symbol{
				Kind:      models.LabelClass,
				Name:      e.Name,
				StartLine: e.StartLine,
				EndLine:   e.EndLine,
				Signature: e.Signature,
			})
		case "import":
			pf.Imports = append(pf.Imports, models.ImportRef{
				Raw:       e.ImportPath,
				StartLine: e.StartLine,
				EndLine:   e.EndLine,
			})
		case "file":
			// already represented by pf itself
		}
	}

	return pf
}

// SupportedLanguages returns the languages with a registered extractor.
func (r *Registry) SupportedLanguages() []string {
	return []string{"go", "javascript", "jsx", "typescript", "tsx", "python"}
}

// HashFile computes the same content hash ParseFile would produce, without
// running extraction. Used by incremental builds to cheaply test for
// change before paying the parse cost.
func (r *Registry) HashFile(absPath string) (string, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", err
	}
	return contentHash(content), nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
