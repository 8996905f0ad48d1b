package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/quarrylabs/quarry/internal/extract"
	"github.com/quarrylabs/quarry/internal/store"
)

var jsBranchKinds = map[string]bool{
	"if_statement":       true,
	"for_statement":      true,
	"for_in_statement":   true,
	"while_statement":    true,
	"do_statement":       true,
	"switch_case":        true,
	"catch_clause":       true,
	"ternary_expression": true,
}

// extractJavaScript walks a JavaScript AST and extracts symbols, calls and
// imports.
func extractJavaScript(root *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	extractJSDefs(root, source, path, "", r)
	extractJSImports(root, source, path, r)
}

// extractJSDefs recurses through definitions. parent names the enclosing
// class for methods and is empty elsewhere.
func extractJSDefs(node *tree_sitter.Node, source []byte, path, parent string, r *extract.FileResult) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_declaration", "generator_function_declaration":
			extractJSFunction(child, source, path, parent, store.KindFunction, "", r)
		case "class_declaration":
			extractJSClass(child, source, path, r)
		case "method_definition":
			extractJSFunction(child, source, path, parent, store.KindMethod, "", r)
		case "lexical_declaration", "variable_declaration":
			extractJSVariableFunctions(child, source, path, parent, r)
		case "export_statement", "statement_block", "expression_statement",
			"if_statement", "class_body", "program":
			extractJSDefs(child, source, path, parent, r)
		}
	}
}

func extractJSClass(node *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}
	r.Symbols = append(r.Symbols, store.Symbol{
		File:      path,
		Name:      name,
		Kind:      store.KindClass,
		StartLine: line(node.StartPosition().Row),
		EndLine:   line(node.EndPosition().Row),
	})
	if body := node.ChildByFieldName("body"); body != nil {
		extractJSDefs(body, source, path, name, r)
	}
}

// extractJSVariableFunctions records `const f = () => ...` and
// `const f = function ...` declarations as function symbols.
func extractJSVariableFunctions(node *tree_sitter.Node, source []byte, path, parent string, r *extract.FileResult) {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		decl := node.NamedChild(i)
		if decl == nil || decl.Kind() != "variable_declarator" {
			continue
		}
		value := decl.ChildByFieldName("value")
		if value == nil {
			continue
		}
		switch value.Kind() {
		case "arrow_function", "function_expression", "generator_function":
			name := text(decl.ChildByFieldName("name"), source)
			if name == "" {
				continue
			}
			extractJSFunction(decl, source, path, parent, store.KindFunction, name, r)
		}
	}
}

// extractJSFunction records one function-like node. nameOverride supplies
// the symbol name when the node itself has no name field binding it.
func extractJSFunction(node *tree_sitter.Node, source []byte, path, parent, kind, nameOverride string, r *extract.FileResult) {
	name := nameOverride
	if name == "" {
		name = text(node.ChildByFieldName("name"), source)
	}
	if name == "" {
		return
	}
	if kind == store.KindMethod && parent == "" {
		kind = store.KindFunction
	}
	r.Symbols = append(r.Symbols, store.Symbol{
		File:       path,
		Name:       name,
		Kind:       kind,
		StartLine:  line(node.StartPosition().Row),
		EndLine:    line(node.EndPosition().Row),
		Parent:     parent,
		Complexity: countBranches(node, jsBranchKinds),
	})
	extractJSCalls(node, source, path, name, r)
	// Nested named functions keep this function as their parent.
	if body := node.ChildByFieldName("body"); body != nil {
		extractJSDefs(body, source, path, name, r)
	}
}

// extractJSCalls records call sites inside one function. Nested named
// functions and classes are skipped; anonymous arrow and function
// expressions are attributed to the enclosing named symbol.
func extractJSCalls(fn *tree_sitter.Node, source []byte, path, caller string, r *extract.FileResult) {
	first := true
	walk(fn, func(n *tree_sitter.Node) bool {
		if first {
			first = false
			return true
		}
		switch n.Kind() {
		case "function_declaration", "generator_function_declaration",
			"class_declaration", "method_definition":
			return false
		case "call_expression":
			name, qualifier := jsCallee(n, source)
			if name != "" && name != "require" {
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

// jsCallee splits a call's function expression into (name, qualifier):
// foo() yields (foo, ""), this.bar() yields (bar, this), mod.baz() yields
// (baz, mod). Deeper member chains yield no qualifier.
func jsCallee(call *tree_sitter.Node, source []byte) (string, string) {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", ""
	}
	switch fn.Kind() {
	case "identifier":
		return text(fn, source), ""
	case "member_expression":
		name := text(fn.ChildByFieldName("property"), source)
		var qualifier string
		if obj := fn.ChildByFieldName("object"); obj != nil {
			switch obj.Kind() {
			case "identifier":
				qualifier = text(obj, source)
			case "this":
				qualifier = "this"
			}
		}
		return name, qualifier
	}
	return "", ""
}

func extractJSImports(root *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "import_statement":
			jsImportStatement(n, source, path, r)
			return false
		case "variable_declarator":
			jsRequireDeclarator(n, source, path, r)
			return true
		case "function_declaration", "class_declaration", "method_definition":
			return true
		}
		return true
	})
}

// jsImportStatement handles ES module imports. Named imports get the source
// module and the imported name; default imports bind the name "default";
// namespace imports become module bindings like a bare import; bare
// side-effect imports record the module with no binding.
func jsImportStatement(n *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	module := strings.Trim(text(n.ChildByFieldName("source"), source), "'\"`")
	if module == "" {
		return
	}
	lineNo := line(n.StartPosition().Row)

	clause := jsChildOfKind(n, "import_clause")
	if clause == nil {
		r.Imports = append(r.Imports, store.ImportRecord{
			File: path, Name: module, Line: lineNo,
		})
		return
	}
	for i := uint(0); i < clause.NamedChildCount(); i++ {
		child := clause.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "identifier":
			r.Imports = append(r.Imports, store.ImportRecord{
				File: path, Module: module, Name: "default",
				Alias: text(child, source), Line: lineNo,
			})
		case "namespace_import":
			if id := jsChildOfKind(child, "identifier"); id != nil {
				r.Imports = append(r.Imports, store.ImportRecord{
					File: path, Name: module, Alias: text(id, source), Line: lineNo,
				})
			}
		case "named_imports":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				spec := child.NamedChild(j)
				if spec == nil || spec.Kind() != "import_specifier" {
					continue
				}
				r.Imports = append(r.Imports, store.ImportRecord{
					File:   path,
					Module: module,
					Name:   text(spec.ChildByFieldName("name"), source),
					Alias:  text(spec.ChildByFieldName("alias"), source),
					Line:   lineNo,
				})
			}
		}
	}
}

// jsRequireDeclarator handles CommonJS bindings: `const x = require('m')`
// becomes a module binding, `const {a, b} = require('m')` one record per
// destructured name.
func jsRequireDeclarator(n *tree_sitter.Node, source []byte, path string, r *extract.FileResult) {
	value := n.ChildByFieldName("value")
	if value == nil || value.Kind() != "call_expression" {
		return
	}
	fn := value.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "identifier" || text(fn, source) != "require" {
		return
	}
	args := value.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return
	}
	module := strings.Trim(text(args.NamedChild(0), source), "'\"`")
	if module == "" {
		return
	}
	lineNo := line(n.StartPosition().Row)

	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	switch nameNode.Kind() {
	case "identifier":
		r.Imports = append(r.Imports, store.ImportRecord{
			File: path, Name: module, Alias: text(nameNode, source), Line: lineNo,
		})
	case "object_pattern":
		for i := uint(0); i < nameNode.NamedChildCount(); i++ {
			prop := nameNode.NamedChild(i)
			if prop == nil {
				continue
			}
			switch prop.Kind() {
			case "shorthand_property_identifier_pattern":
				r.Imports = append(r.Imports, store.ImportRecord{
					File: path, Module: module, Name: text(prop, source), Line: lineNo,
				})
			case "pair_pattern":
				r.Imports = append(r.Imports, store.ImportRecord{
					File:   path,
					Module: module,
					Name:   text(prop.ChildByFieldName("key"), source),
					Alias:  text(prop.ChildByFieldName("value"), source),
					Line:   lineNo,
				})
			}
		}
	}
}

func jsChildOfKind(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c != nil && c.Kind() == kind {
			return c
		}
	}
	return nil
}
