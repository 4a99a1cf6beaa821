package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractGoEntities extracts entities from a Go AST with the same
// walk-and-switch shape as extractPythonEntities; Go has no class keyword,
// so type_declaration nodes for struct/interface types stand in for the
// "class" entity kind.
func extractGoEntities(filePath string, root *sitter.Node, code []byte) ([]CodeEntity, error) {
	entities := []CodeEntity{}

	entities = append(entities, CodeEntity{
		Type:     "file",
		Name:     filepath.Base(filePath),
		FilePath: filePath,
		Language: "go",
	})

	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}

		switch node.Kind() {
		case "function_declaration":
			extractGoFunctionDeclaration(node, code, filePath, &entities)
		case "method_declaration":
			extractGoMethodDeclaration(node, code, filePath, &entities)
		case "type_declaration":
			extractGoTypeDeclaration(node, code, filePath, &entities)
		case "import_spec":
			extractGoImportSpec(node, code, filePath, &entities)
		}

		for i := uint(0); i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
	}

	walk(root)
	return entities, nil
}

func extractGoFunctionDeclaration(node *sitter.Node, code []byte, filePath string, entities *[]CodeEntity) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}

	funcName := getNodeText(nameNode, code)
	paramsNode := node.ChildByFieldName("parameters")
	params := ""
	if paramsNode != nil {
		params = getNodeText(paramsNode, code)
	}

	*entities = append(*entities, CodeEntity{
		Type:      "function",
		Name:      funcName,
		FilePath:  filePath,
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
		Language:  "go",
		Signature: fmt.Sprintf("func %s%s", funcName, params),
	})
}

func extractGoMethodDeclaration(node *sitter.Node, code []byte, filePath string, entities *[]CodeEntity) {
	nameNode := node.ChildByFieldName("name")
	receiverNode := node.ChildByFieldName("receiver")
	if nameNode == nil {
		return
	}

	methodName := getNodeText(nameNode, code)
	receiverType := strings.TrimSpace(strings.Trim(getNodeText(receiverNode, code), "()"))
	fullName := methodName
	if receiverType != "" {
		fullName = fmt.Sprintf("%s.%s", receiverType, methodName)
	}

	paramsNode := node.ChildByFieldName("parameters")
	params := ""
	if paramsNode != nil {
		params = getNodeText(paramsNode, code)
	}

	*entities = append(*entities, CodeEntity{
		Type:      "function",
		Name:      fullName,
		FilePath:  filePath,
		StartLine: int(node.StartPosition().Row) + 1,
		EndLine:   int(node.EndPosition().Row) + 1,
		Language:  "go",
		Signature: fmt.Sprintf("func (%s) %s%s", receiverType, methodName, params),
	})
}

func extractGoTypeDeclaration(node *sitter.Node, code []byte, filePath string, entities *[]CodeEntity) {
	for i := uint(0); i < node.ChildCount(); i++ {
		spec := node.Child(i)
		if spec.Kind() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		*entities = append(*entities, CodeEntity{
			Type:      "class",
			Name:      getNodeText(nameNode, code),
			FilePath:  filePath,
			StartLine: int(spec.StartPosition().Row) + 1,
			EndLine:   int(spec.EndPosition().Row) + 1,
			Language:  "go",
		})
	}
}

func extractGoImportSpec(node *sitter.Node, code []byte, filePath string, entities *[]CodeEntity) {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	importPath := strings.Trim(getNodeText(pathNode, code), "\"")

	*entities = append(*entities, CodeEntity{
		Type:       "import",
		Name:       importPath,
		FilePath:   filePath,
		Language:   "go",
		ImportPath: importPath,
		StartLine:  int(node.StartPosition().Row) + 1,
		EndLine:    int(node.EndPosition().Row) + 1,
	})
}
