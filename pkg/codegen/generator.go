package codegen

import (
	"fmt"
	"strings"
	"sync"
)

// Backend renders boilerplate for one target language.
// Each backend owns its type table and its stdin/stdout idioms.
type Backend interface {
	Language() Language
	// Comment renders text as a single line comment in the target language.
	Comment(text string) string
	// MapType returns the declaration type for an abstract type, or a placeholder for unknown ones.
	MapType(t Type) string
	// EmitStub renders the imports and the function stub the user edits.
	EmitStub(sig Signature) string
	// EmitDriver renders the program entry point that reads stdin, calls the stub and prints the result.
	EmitDriver(sig Signature) string
}

// Generator dispatches boilerplate generation to per-language backends.
type Generator struct {
	mu       sync.RWMutex
	backends map[Language]Backend
}

// NewGenerator returns a generator with the six built-in backends registered.
func NewGenerator() *Generator {
	g := &Generator{backends: make(map[Language]Backend)}
	g.Register(cBackend{})
	g.Register(cppBackend{})
	g.Register(javaBackend{})
	g.Register(pythonBackend{})
	g.Register(javaScriptBackend{})
	g.Register(cSharpBackend{})
	return g
}

var defaultGenerator = NewGenerator()

// Generate renders boilerplate with the default generator.
func Generate(lang Language, sig Signature) string {
	return defaultGenerator.Generate(lang, sig)
}

// Languages lists the languages supported by the default generator.
func Languages() []LanguageInfo {
	return defaultGenerator.Languages()
}

// Register adds or replaces the backend for its language.
func (g *Generator) Register(backend Backend) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backends[backend.Language()] = backend
}

// Lookup returns the backend for lang or ErrUnsupportedLanguage.
func (g *Generator) Lookup(lang Language) (Backend, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	backend, ok := g.backends[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedLanguage, lang)
	}
	return backend, nil
}

// Languages lists registered languages ordered by id.
func (g *Generator) Languages() []LanguageInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedLanguages(g.backends)
}

// Generate returns stub and driver source for sig in lang.
// It never fails: invalid signatures and unknown languages yield a comment explaining the problem.
func (g *Generator) Generate(lang Language, sig Signature) string {
	backend, lookupErr := g.Lookup(lang)

	if err := sig.Validate(); err != nil {
		message := "Error: Invalid problem metadata. Please ensure functionName, inputs, and output are defined."
		if name := strings.TrimSpace(sig.FunctionName); name != "" {
			message = fmt.Sprintf("Error: Invalid problem metadata for %s. Please ensure functionName, inputs, and output are defined.", name)
		}
		if lookupErr != nil {
			return "// " + message
		}
		return backend.Comment(message)
	}

	if lookupErr != nil {
		return fmt.Sprintf("// Language not supported. Please choose from the available languages. (%s)", sig.FunctionName)
	}

	stub := strings.TrimSpace(backend.EmitStub(sig))
	driver := strings.TrimSpace(backend.EmitDriver(sig))
	return stub + "\n\n" + driver + "\n"
}

// sourceWriter accumulates generated source one indented line at a time.
type sourceWriter struct {
	b      strings.Builder
	indent string
}

func newSourceWriter(indent string) *sourceWriter {
	return &sourceWriter{indent: indent}
}

// line writes text verbatim at the given depth. Text is not a format string.
func (w *sourceWriter) line(depth int, text string) {
	if text != "" {
		w.b.WriteString(strings.Repeat(w.indent, depth))
		w.b.WriteString(text)
	}
	w.b.WriteByte('\n')
}

func (w *sourceWriter) linef(depth int, format string, args ...interface{}) {
	w.line(depth, fmt.Sprintf(format, args...))
}

func (w *sourceWriter) blank() {
	w.b.WriteByte('\n')
}

// block writes a multi-line snippet, trimming its leading newline.
func (w *sourceWriter) block(text string) {
	w.b.WriteString(strings.TrimPrefix(text, "\n"))
	if !strings.HasSuffix(text, "\n") {
		w.b.WriteByte('\n')
	}
}

func (w *sourceWriter) String() string {
	return w.b.String()
}

func unsupportedTypeNote(kind Type, name string) string {
	return fmt.Sprintf("unsupported type %q for %s: adjust the declaration and parsing by hand", string(kind), name)
}

func usesKind(sig Signature, match func(Type) bool) bool {
	for _, input := range sig.Inputs {
		if match(input.Kind()) {
			return true
		}
	}
	return sig.Output != nil && match(sig.Output.Kind())
}
