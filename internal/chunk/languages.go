package chunk

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageSpec describes how boundaries are found for one language or format.
// Adding a language means adding one entry to languageTable.
type languageSpec struct {
	name       string
	kind       Kind
	extensions []string

	// grammar and declTypes enable tree-sitter boundaries. declTypes lists
	// top-level node types that start a logical unit.
	grammar   func() *sitter.Language
	declTypes map[string]bool

	// markers are line regexes for declarations or headings. They are the
	// only boundary source for languages without a grammar and the fallback
	// when parsing fails.
	markers []*regexp.Regexp

	// comments are line prefixes pulled into the following declaration.
	comments []string

	// fenced skips markers inside ``` or ~~~ blocks.
	fenced bool
	// underlined detects reStructuredText style headings.
	underlined bool
}

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func res(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

var (
	cComments      = []string{"//", "/*", "*", "*/"}
	hashComments   = []string{"#"}
	jsDeclTypes    = set("function_declaration", "generator_function_declaration", "class_declaration", "lexical_declaration", "variable_declaration", "export_statement")
	tsDeclTypes    = set("function_declaration", "generator_function_declaration", "class_declaration", "abstract_class_declaration", "interface_declaration", "type_alias_declaration", "enum_declaration", "lexical_declaration", "variable_declaration", "export_statement", "module", "internal_module")
	jsMarkers      = res(`^(export\s+)?(default\s+)?(async\s+)?(function\*?|class)\b`, `^(export\s+)?(const|let|var)\s+\w+`)
	tsMarkers      = res(`^(export\s+)?(default\s+)?(declare\s+)?(async\s+)?(function\*?|abstract\s+class|class|interface|type|enum|namespace)\b`, `^(export\s+)?(const|let|var)\s+\w+`)
	markdownHeader = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	fenceLine      = regexp.MustCompile("^\\s*(```|~~~)")
)

var languageTable = []*languageSpec{
	{
		name: "go", kind: KindCode, extensions: []string{".go"},
		grammar:   golang.GetLanguage,
		declTypes: set("function_declaration", "method_declaration", "type_declaration", "const_declaration", "var_declaration"),
		markers:   res(`^func\b`, `^type\b`, `^(const|var)\s*\(?`),
		comments:  cComments,
	},
	{
		name: "python", kind: KindCode, extensions: []string{".py", ".pyi"},
		grammar:   python.GetLanguage,
		declTypes: set("function_definition", "class_definition", "decorated_definition"),
		markers:   res(`^(async\s+)?def\s`, `^class\s`, `^@\w`),
		comments:  hashComments,
	},
	{
		name: "javascript", kind: KindCode, extensions: []string{".js", ".mjs", ".cjs"},
		grammar: javascript.GetLanguage, declTypes: jsDeclTypes,
		markers: jsMarkers, comments: cComments,
	},
	{
		name: "jsx", kind: KindCode, extensions: []string{".jsx"},
		grammar: javascript.GetLanguage, declTypes: jsDeclTypes,
		markers: jsMarkers, comments: cComments,
	},
	{
		name: "typescript", kind: KindCode, extensions: []string{".ts", ".mts", ".cts"},
		grammar: typescript.GetLanguage, declTypes: tsDeclTypes,
		markers: tsMarkers, comments: cComments,
	},
	{
		name: "tsx", kind: KindCode, extensions: []string{".tsx"},
		grammar: tsx.GetLanguage, declTypes: tsDeclTypes,
		markers: tsMarkers, comments: cComments,
	},
	{
		name: "rust", kind: KindCode, extensions: []string{".rs"},
		markers: res(
			`^\s*(pub(\([^)]*\))?\s+)?((async|const|unsafe|default)\s+)*(extern\s+"[^"]*"\s+)?(fn|struct|enum|union|trait|impl|mod|type|macro_rules!)\b`,
			`^\s*#!?\[`,
		),
		comments: cComments,
	},
	{
		name: "java", kind: KindCode, extensions: []string{".java"},
		markers: res(
			`^\s*((public|private|protected|static|final|abstract|sealed|non-sealed|strictfp|synchronized|native|default)\s+)*(class|interface|enum|record|@interface)\s+\w+`,
			`^\s*((public|private|protected|static|final|abstract|synchronized|native|default)\s+)+[\w<>\[\],.? ]+\s+\w+\s*\(`,
			`^\s*@\w+`,
		),
		comments: cComments,
	},
	{
		name: "kotlin", kind: KindCode, extensions: []string{".kt", ".kts"},
		markers: res(
			`^\s*((public|private|protected|internal|open|abstract|sealed|data|enum|inline|value|annotation|override|suspend|operator|infix|tailrec|external|inner)\s+)*(class|interface|object|fun|typealias)\b`,
			`^\s*@\w+`,
		),
		comments: cComments,
	},
	{
		name: "scala", kind: KindCode, extensions: []string{".scala", ".sc"},
		markers: res(
			`^\s*((private|protected|final|sealed|abstract|implicit|lazy|override|case)\s+)*(class|trait|object|def|enum|given)\b`,
			`^\s*@\w+`,
		),
		comments: cComments,
	},
	{
		name: "c", kind: KindCode, extensions: []string{".c", ".h"},
		markers: res(
			`^(static\s+|extern\s+|inline\s+)*[A-Za-z_][\w\s\*]*\s\**[A-Za-z_]\w*\s*\([^;]*$`,
			`^(typedef\s+)?(struct|enum|union)\b[^;]*$`,
			`^#define\s+\w+\(`,
		),
		comments: cComments,
	},
	{
		name: "cpp", kind: KindCode, extensions: []string{".cc", ".cpp", ".cxx", ".hpp", ".hh", ".hxx"},
		markers: res(
			`^(template\s*<.*>\s*)?(static\s+|extern\s+|inline\s+|virtual\s+|constexpr\s+)*[A-Za-z_][\w\s\*&:<>,]*\s[\*&]*[A-Za-z_~][\w:]*\s*\([^;]*$`,
			`^(template\s*<.*>\s*)?(class|struct|enum|union|namespace)\b[^;]*$`,
		),
		comments: cComments,
	},
	{
		name: "csharp", kind: KindCode, extensions: []string{".cs"},
		markers: res(
			`^\s*((public|private|protected|internal|static|sealed|abstract|partial|readonly|unsafe|new)\s+)*(class|interface|struct|enum|record|namespace)\s+\w+`,
			`^\s*((public|private|protected|internal|static|virtual|override|abstract|async|sealed|extern|unsafe|new)\s+)+[\w<>\[\],.? ]+\s+\w+\s*\(`,
			`^\s*\[\w+`,
		),
		comments: cComments,
	},
	{
		name: "ruby", kind: KindCode, extensions: []string{".rb", ".rake"},
		markers:  res(`^\s*(def|class|module)\s`),
		comments: hashComments,
	},
	{
		name: "php", kind: KindCode, extensions: []string{".php"},
		markers:  res(`^\s*((public|private|protected|static|abstract|final|readonly)\s+)*(function|class|interface|trait|enum)\s`),
		comments: append([]string{"#"}, cComments...),
	},
	{
		name: "swift", kind: KindCode, extensions: []string{".swift"},
		markers: res(
			`^\s*((public|private|internal|fileprivate|open|static|class|final|override|mutating|convenience|required)\s+)*(func|class|struct|enum|protocol|extension|actor|init)\b`,
			`^\s*@\w+`,
		),
		comments: cComments,
	},
	{
		name: "lua", kind: KindCode, extensions: []string{".lua"},
		markers:  res(`^\s*(local\s+)?function\s`),
		comments: []string{"--"},
	},
	{
		name: "shell", kind: KindCode, extensions: []string{".sh", ".bash", ".zsh"},
		markers:  res(`^\s*function\s+[\w:-]+`, `^\s*[\w:-]+\s*\(\)\s*\{?`),
		comments: hashComments,
	},
	{
		name: "markdown", kind: KindDocument, extensions: []string{".md", ".markdown", ".mdx"},
		markers: []*regexp.Regexp{markdownHeader},
		fenced:  true,
	},
	{
		name: "asciidoc", kind: KindDocument, extensions: []string{".adoc", ".asciidoc"},
		markers: res(`^={1,6}\s+\S`),
		fenced:  true,
	},
	{
		name: "rst", kind: KindDocument, extensions: []string{".rst"},
		underlined: true,
	},
	{
		name: "text", kind: KindDocument, extensions: []string{".txt"},
	},
}

var (
	specByExt  = map[string]*languageSpec{}
	specByName = map[string]*languageSpec{}
)

func init() {
	for _, spec := range languageTable {
		specByName[spec.name] = spec
		for _, ext := range spec.extensions {
			specByExt[ext] = spec
		}
	}
}

// DetectCategory classifies path by its extension.
func DetectCategory(path string) Category {
	spec, ok := specByExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Generic()
	}
	return Category{Kind: spec.kind, Language: spec.name}
}

// SupportedExtensions returns every extension with structural boundaries, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(specByExt))
	for ext := range specByExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// HasGrammar reports whether lang is parsed with tree-sitter.
func HasGrammar(lang string) bool {
	spec, ok := specByName[lang]
	return ok && spec.grammar != nil
}
