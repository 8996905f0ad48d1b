package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/quarrylabs/quarry/internal/extract"
	"github.com/quarrylabs/quarry/internal/store"
)

var goBranchKinds = map[string]bool{
	"if_statement":       true,
	"for_statement":      true,
	"expression_case":    true,
	"type_case":          true,
	"communication_case": true,
	"select_statement":   true,
}

// extractGo walks a Go AST and extracts symbols, calls and imports.
func extractGo(root *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_declaration":
			extractGoFunction(child, source, path, "", r)
		case "method_declaration":
			extractGoFunction(child, source, path, goReceiverType(child, source), r)
		case "type_declaration":
			extractGoTypes(child, source, path, r)
		case "import_declaration":
			extractGoImports(child, source, path, r)
		}
	}
}

func extractGoFunction(node *tree_sitter.Node, source []byte, path, receiver string, r *extract.FileResult) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}
	kind := store.KindFunction
	if receiver != "" {
		kind = store.KindMethod
	}
	r.Symbols = append(r.Symbols, store.Symbol{
		File:       path,
		Name:       name,
		Kind:       kind,
		StartLine:  line(node.StartPosition().Row),
		EndLine:    line(node.EndPosition().Row),
		Parent:     receiver,
		Complexity: countBranches(node, goBranchKinds),
	})
	if body := node.ChildByFieldName("body"); body != nil {
		extractGoCalls(body, source, path, name, r)
	}
}

// goReceiverType returns the receiver's type name with any pointer stripped,
// so methods on *T and T share one parent.
func goReceiverType(node *tree_sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := uint(0); i < recv.NamedChildCount(); i++ {
		decl := recv.NamedChild(i)
		if decl == nil || decl.Kind() != "parameter_declaration" {
			continue
		}
		t := decl.ChildByFieldName("type")
		if t == nil {
			continue
		}
		if t.Kind() == "pointer_type" {
			if inner := t.NamedChild(0); inner != nil {
				t = inner
			}
		}
		// Generic receivers look like generic_type(type_identifier, ...).
		if t.Kind() == "generic_type" {
			if base := t.ChildByFieldName("type"); base != nil {
				t = base
			}
		}
		return text(t, source)
	}
	return ""
}

// extractGoTypes records each type_spec in a declaration. Structs and
// interfaces get their own kinds; everything else is a plain type.
func extractGoTypes(node *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		spec := node.NamedChild(i)
		if spec == nil || (spec.Kind() != "type_spec" && spec.Kind() != "type_alias") {
			continue
		}
		name := text(spec.ChildByFieldName("name"), source)
		if name == "" {
			continue
		}
		kind := store.KindType
		if t := spec.ChildByFieldName("type"); t != nil {
			switch t.Kind() {
			case "struct_type":
				kind = store.KindStruct
			case "interface_type":
				kind = store.KindInterface
			}
		}
		r.Symbols = append(r.Symbols, store.Symbol{
			File:      path,
			Name:      name,
			Kind:      kind,
			StartLine: line(spec.StartPosition().Row),
			EndLine:   line(spec.EndPosition().Row),
		})
	}
}

// extractGoCalls records call sites inside one function body. Function
// literals are not skipped: their calls are attributed to the enclosing
// named function.
func extractGoCalls(body *tree_sitter.Node, source []byte, path, caller string, r *extract.FileResult) {
	walk(body, func(n *tree_sitter.Node) bool {
		if n.Kind() != "call_expression" {
			return true
		}
		name, qualifier := goCallee(n, source)
		if name != "" {
			r.Calls = append(r.Calls, store.CallEdge{
				CallerFile:   path,
				CallerSymbol: caller,
				CalleeName:   name,
				CalleeQualif: qualifier,
				Line:         line(n.StartPosition().Row),
			})
		}
		return true
	})
}

// goCallee splits a call's function expression into (name, qualifier):
// foo() yields (foo, ""), pkg.Bar() yields (Bar, pkg), a.b.C() yields
// (C, "") since only a simple identifier operand is a qualifier.
func goCallee(call *tree_sitter.Node, source []byte) (string, string) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}
	switch fn.Kind() {
	case "identifier":
		return text(fn, source), ""
	case "selector_expression":
		name := text(fn.ChildByFieldName("field"), source)
		var qualifier string
		if op := fn.ChildByFieldName("operand"); op != nil && op.Kind() == "identifier" {
			qualifier = text(op, source)
		}
		return name, qualifier
	}
	return "", ""
}

// extractGoImports records import specs. The full path goes in the name and
// the local binding in the alias: the implicit last path segment when no
// explicit name is given, the explicit name otherwise. Dot imports become
// wildcard rows so their symbols resolve like star imports.
func extractGoImports(node *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	walk(node, func(n *tree_sitter.Node) bool {
		if n.Kind() != "import_spec" {
			return true
		}
		importPath := strings.Trim(text(n.ChildByFieldName("path"), source), `"`)
		if importPath == "" {
			return false
		}
		lineNo := line(n.StartPosition().Row)
		alias := text(n.ChildByFieldName("name"), source)
		if alias == "." {
			r.Imports = append(r.Imports, store.ImportRecord{
				File: path, Module: importPath, Name: store.WildcardName, Line: lineNo,
			})
			return false
		}
		if alias == "" {
			if i := strings.LastIndexByte(importPath, '/'); i >= 0 {
				alias = importPath[i+1:]
			} else {
				alias = importPath
			}
		}
		r.Imports = append(r.Imports, store.ImportRecord{
			File: path, Name: importPath, Alias: alias, Line: lineNo,
		})
		return false
	})
}
