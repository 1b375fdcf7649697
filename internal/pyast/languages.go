package pyast

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// LanguageName is the canonical language name used in documents and scripts.
const LanguageName = "python"

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".py":  LanguageName,
	".pyi": LanguageName,
}

var (
	grammar     *sitter.Language
	grammarOnce sync.Once
)

// Language returns the tree-sitter Python grammar.
func Language() *sitter.Language {
	grammarOnce.Do(func() {
		grammar = python.GetLanguage()
	})
	return grammar
}

// LanguageForFile returns the canonical language name for a path based on its
// extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// ParserForLanguage returns the grammar for a canonical language name.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	if strings.ToLower(lang) != LanguageName {
		return nil, false
	}
	return Language(), true
}
