package parser

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/quarrylabs/quarry/internal/extract"
	"github.com/quarrylabs/quarry/internal/store"
)

var pythonBranchKinds = map[string]bool{
	"if_statement":           true,
	"elif_clause":            true,
	"for_statement":          true,
	"while_statement":        true,
	"except_clause":          true,
	"conditional_expression": true,
	"boolean_operator":       true,
}

// extractPython walks a Python AST and extracts symbols, calls and imports.
func extractPython(root *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	extractPythonDefs(root, source, path, "", false, r)
	extractPythonImports(root, source, path, r)
}

// extractPythonDefs recurses through definitions. parent names the enclosing
// symbol ("" at module level); inClass reports whether that scope is a class
// body, which is what makes a def a method. A def nested inside a function
// keeps the function as its parent but stays a plain function.
func extractPythonDefs(node *tree_sitter.Node, source []byte, path, parent string, inClass bool, r *extract.FileResult) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "class_definition":
			name := text(child.ChildByFieldName("name"), source)
			if name == "" {
				continue
			}
			r.Symbols = append(r.Symbols, store.Symbol{
				File:      path,
				Name:      name,
				Kind:      store.KindClass,
				StartLine: line(child.StartPosition().Row),
				EndLine:   line(child.EndPosition().Row),
				Parent:    parent,
			})
			if body := child.ChildByFieldName("body"); body != nil {
				extractPythonDefs(body, source, path, name, true, r)
			}
		case "function_definition":
			extractPythonFunction(child, source, path, parent, inClass, r)
		case "decorated_definition":
			extractPythonDefs(child, source, path, parent, inClass, r)
		default:
			// Statements like if __name__ == "__main__" can nest defs.
			if child.ChildCount() > 0 && !isPythonLeafStatement(child.Kind()) {
				extractPythonDefs(child, source, path, parent, inClass, r)
			}
		}
	}
}

func isPythonLeafStatement(kind string) bool {
	switch kind {
	case "import_statement", "import_from_statement", "expression_statement",
		"comment", "string", "call":
		return true
	}
	return false
}

func extractPythonFunction(node *tree_sitter.Node, source []byte, path, parent string, inClass bool, r *extract.FileResult) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}
	kind := store.KindFunction
	if inClass {
		kind = store.KindMethod
	}
	r.Symbols = append(r.Symbols, store.Symbol{
		File:       path,
		Name:       name,
		Kind:       kind,
		StartLine:  line(node.StartPosition().Row),
		EndLine:    line(node.EndPosition().Row),
		Parent:     parent,
		Complexity: countBranches(node, pythonBranchKinds),
	})

	if body := node.ChildByFieldName("body"); body != nil {
		extractPythonCalls(body, source, path, name, r)
		// Nested defs keep this function as their parent.
		extractPythonDefs(body, source, path, name, false, r)
	}
}

// extractPythonCalls records call sites inside one function body. Nested
// function definitions are skipped: their calls belong to the inner symbol.
func extractPythonCalls(body *tree_sitter.Node, source []byte, path, caller string, r *extract.FileResult) {
	walk(body, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "function_definition", "class_definition":
			return false
		case "call":
			name, qualifier := pythonCallee(n, source)
			if name != "" {
				r.Calls = append(r.Calls, store.CallEdge{
					CallerFile:   path,
					CallerSymbol: caller,
					CalleeName:   name,
					CalleeQualif: qualifier,
					Line:         line(n.StartPosition().Row),
				})
			}
		}
		return true
	})
}

// pythonCallee splits a call's function expression into (name, qualifier):
// foo() yields (foo, ""), self.bar() yields (bar, self), mod.attr.baz()
// yields (baz, "") since only a simple identifier receiver is a qualifier.
func pythonCallee(call *tree_sitter.Node, source []byte) (string, string) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}
	switch fn.Kind() {
	case "identifier":
		return text(fn, source), ""
	case "attribute":
		name := text(fn.ChildByFieldName("attribute"), source)
		var qualifier string
		if obj := fn.ChildByFieldName("object"); obj != nil && obj.Kind() == "identifier" {
			qualifier = text(obj, source)
		}
		return name, qualifier
	}
	return "", ""
}

func extractPythonImports(root *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "import_statement":
			pythonImportStatement(n, source, path, r)
			return false
		case "import_from_statement":
			pythonFromImport(n, source, path, r)
			return false
		}
		return true
	})
}

// pythonImportStatement handles "import X" and "import X as Y": module is
// empty (the module and the name coincide).
func pythonImportStatement(n *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	lineNo := line(n.StartPosition().Row)
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			r.Imports = append(r.Imports, store.ImportRecord{
				File: path, Name: text(child, source), Line: lineNo,
			})
		case "aliased_import":
			r.Imports = append(r.Imports, store.ImportRecord{
				File:  path,
				Name:  text(child.ChildByFieldName("name"), source),
				Alias: text(child.ChildByFieldName("alias"), source),
				Line:  lineNo,
			})
		}
	}
}

// pythonFromImport handles "from M import a, b as c" and "from M import *".
func pythonFromImport(n *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	module := text(n.ChildByFieldName("module_name"), source)
	lineNo := line(n.StartPosition().Row)
	moduleID := fieldID(n, "module_name")

	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Id() == moduleID {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			r.Imports = append(r.Imports, store.ImportRecord{
				File: path, Module: module, Name: text(child, source), Line: lineNo,
			})
		case "aliased_import":
			r.Imports = append(r.Imports, store.ImportRecord{
				File:   path,
				Module: module,
				Name:   text(child.ChildByFieldName("name"), source),
				Alias:  text(child.ChildByFieldName("alias"), source),
				Line:   lineNo,
			})
		case "wildcard_import":
			r.Imports = append(r.Imports, store.ImportRecord{
				File: path, Module: module, Name: store.WildcardName, Line: lineNo,
			})
		}
	}
}

// fieldID returns the node id of a field child, or 0 when absent.
func fieldID(n *tree_sitter.Node, field string) uintptr {
	if c := n.ChildByFieldName(field); c != nil {
		return c.Id()
	}
	return 0
}
