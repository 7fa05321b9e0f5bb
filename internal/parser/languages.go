package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	golang "github.com/tree-sitter/tree-sitter-go/bindings/go"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// defaultLanguageSpecs returns the node-kind → Kind tables for every
// tree-sitter-backed language this module ships, per SPEC_FULL.md §4.2's
// language table.
func defaultLanguageSpecs() map[string]languageSpec {
	return map[string]languageSpec{
		"go": {
			language: sitter.NewLanguage(golang.Language()),
			rules: map[string]nodeRule{
				"function_declaration": {kind: KindFunction, nameField: "name"},
				"method_declaration":   {kind: KindMethod, nameField: "name"},
				"type_declaration":     {kind: KindStruct, nameField: ""},
			},
		},
		"python": {
			language: sitter.NewLanguage(python.Language()),
			rules: map[string]nodeRule{
				"function_definition": {kind: KindFunction, nameField: "name"},
				"class_definition":    {kind: KindClass, nameField: "name"},
			},
			topLevelOnly: true,
		},
		"typescript": {
			language: sitter.NewLanguage(typescript.LanguageTypescript()),
			rules: map[string]nodeRule{
				"function_declaration":  {kind: KindFunction, nameField: "name"},
				"class_declaration":     {kind: KindClass, nameField: "name"},
				"method_definition":     {kind: KindMethod, nameField: "name"},
				"interface_declaration": {kind: KindInterface, nameField: "name"},
				"enum_declaration":      {kind: KindEnum, nameField: "name"},
				"arrow_function":        {kind: KindClosure, nameField: ""},
			},
		},
		"rust": {
			language: sitter.NewLanguage(rust.Language()),
			rules: map[string]nodeRule{
				"function_item":  {kind: KindFunction, nameField: "name"},
				"struct_item":    {kind: KindStruct, nameField: "name"},
				"trait_item":     {kind: KindTrait, nameField: "name"},
				"enum_item":      {kind: KindEnum, nameField: "name"},
				"impl_item":      {kind: KindClass, nameField: "type"},
				"closure_expression": {kind: KindClosure, nameField: ""},
			},
			topLevelOnly: true,
		},
		"java": {
			language: sitter.NewLanguage(java.Language()),
			rules: map[string]nodeRule{
				"method_declaration":    {kind: KindMethod, nameField: "name"},
				"class_declaration":     {kind: KindClass, nameField: "name"},
				"interface_declaration": {kind: KindInterface, nameField: "name"},
				"enum_declaration":      {kind: KindEnum, nameField: "name"},
			},
		},
		"ruby": {
			language: sitter.NewLanguage(ruby.Language()),
			rules: map[string]nodeRule{
				"method":       {kind: KindMethod, nameField: "name"},
				"class":        {kind: KindClass, nameField: "name"},
				"module":       {kind: KindTrait, nameField: "name"},
				"singleton_method": {kind: KindMethod, nameField: "name"},
			},
			topLevelOnly: true,
		},
		"c": {
			language: sitter.NewLanguage(c.Language()),
			rules: map[string]nodeRule{
				"function_definition": {kind: KindFunction, nameField: ""},
				"struct_specifier":    {kind: KindStruct, nameField: "name"},
			},
			topLevelOnly: true,
		},
		"php": {
			language: sitter.NewLanguage(php.LanguagePHP()),
			rules: map[string]nodeRule{
				"function_definition":   {kind: KindFunction, nameField: "name"},
				"method_declaration":    {kind: KindMethod, nameField: "name"},
				"class_declaration":     {kind: KindClass, nameField: "name"},
				"interface_declaration": {kind: KindInterface, nameField: "name"},
				"trait_declaration":     {kind: KindTrait, nameField: "name"},
				"enum_declaration":      {kind: KindEnum, nameField: "name"},
			},
		},
	}
}
