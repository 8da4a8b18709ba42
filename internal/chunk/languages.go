package chunk

import (
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Grammar describes how to find declarations in one tree-sitter language.
type Grammar struct {
	Name     string
	Language *sitter.Language

	// Declarations maps top-level node types to the kind they declare.
	Declarations map[string]Kind

	// Wrappers are node types that wrap a declaration, such as export
	// statements or decorators, with the field holding the inner node.
	Wrappers map[string]string

	// Leading are node types attached to the declaration that follows them.
	Leading map[string]bool
}

var goGrammar = &Grammar{
	Name:     "go",
	Language: golang.GetLanguage(),
	Declarations: map[string]Kind{
		"function_declaration": KindFunction,
		"method_declaration":   KindMethod,
		"type_declaration":     KindType,
		"const_declaration":    KindConstant,
		"var_declaration":      KindVariable,
	},
	Leading: map[string]bool{"comment": true},
}

var pythonGrammar = &Grammar{
	Name:     "python",
	Language: python.GetLanguage(),
	Declarations: map[string]Kind{
		"function_definition": KindFunction,
		"class_definition":    KindClass,
	},
	Wrappers: map[string]string{"decorated_definition": "definition"},
	Leading:  map[string]bool{"comment": true},
}

var rustGrammar = &Grammar{
	Name:     "rust",
	Language: rust.GetLanguage(),
	Declarations: map[string]Kind{
		"function_item":    KindFunction,
		"impl_item":        KindClass,
		"struct_item":      KindType,
		"enum_item":        KindType,
		"union_item":       KindType,
		"type_item":        KindType,
		"trait_item":       KindInterface,
		"mod_item":         KindModule,
		"const_item":       KindConstant,
		"static_item":      KindVariable,
		"macro_definition": KindFunction,
	},
	Leading: map[string]bool{
		"line_comment":   true,
		"block_comment":  true,
		"attribute_item": true,
	},
}

var jsDeclarations = map[string]Kind{
	"function_declaration":           KindFunction,
	"generator_function_declaration": KindFunction,
	"class_declaration":              KindClass,
	"lexical_declaration":            KindVariable,
	"variable_declaration":           KindVariable,
}

var tsDeclarations = map[string]Kind{
	"function_declaration":           KindFunction,
	"generator_function_declaration": KindFunction,
	"class_declaration":              KindClass,
	"abstract_class_declaration":     KindClass,
	"interface_declaration":          KindInterface,
	"type_alias_declaration":         KindType,
	"enum_declaration":               KindType,
	"lexical_declaration":            KindVariable,
	"variable_declaration":           KindVariable,
	"module":                         KindModule,
}

var javascriptGrammar = &Grammar{
	Name:         "javascript",
	Language:     javascript.GetLanguage(),
	Declarations: jsDeclarations,
	Wrappers:     map[string]string{"export_statement": "declaration"},
	Leading:      map[string]bool{"comment": true},
}

var typescriptGrammar = &Grammar{
	Name:         "typescript",
	Language:     typescript.GetLanguage(),
	Declarations: tsDeclarations,
	Wrappers:     map[string]string{"export_statement": "declaration"},
	Leading:      map[string]bool{"comment": true},
}

var tsxGrammar = &Grammar{
	Name:         "tsx",
	Language:     tsx.GetLanguage(),
	Declarations: tsDeclarations,
	Wrappers:     map[string]string{"export_statement": "declaration"},
	Leading:      map[string]bool{"comment": true},
}

// GrammarFor returns the grammar for a language tag. The file path picks
// the TSX flavour of TypeScript.
func GrammarFor(language, filePath string) (*Grammar, bool) {
	switch language {
	case "go":
		return goGrammar, true
	case "python":
		return pythonGrammar, true
	case "rust":
		return rustGrammar, true
	case "javascript":
		return javascriptGrammar, true
	case "typescript":
		if strings.EqualFold(path.Ext(filePath), ".tsx") {
			return tsxGrammar, true
		}
		return typescriptGrammar, true
	}
	return nil, false
}

// SyntaxLanguages lists the language tags SyntaxChunker parses.
func SyntaxLanguages() []string {
	return []string{"go", "javascript", "python", "rust", "typescript"}
}
