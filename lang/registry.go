package lang

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Language is the wire identifier of a supported language.
type Language string

const (
	CPP        Language = "cpp"
	Python     Language = "python"
	JavaScript Language = "javascript"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

// Toolchain holds the absolute paths of the binaries used to build and run
// submissions. Nothing is looked up on PATH at execution time.
type Toolchain struct {
	Gpp      string
	CppFlags []string
	Python   string
	Node     string
}

// Spec describes how a language is laid out inside a workspace and invoked.
// All file arguments are relative to the workspace directory.
type Spec struct {
	Name       Language
	SourceFile string
	BinaryFile string

	// CompileArgs is nil for interpreted languages.
	CompileArgs func(src, bin string) []string
	RunArgs     func(src, bin string) []string
}

// Compiled reports whether the language has a compile phase.
func (s Spec) Compiled() bool {
	return s.CompileArgs != nil
}

type Registry struct {
	mu    sync.RWMutex
	specs map[Language]Spec
}

// NewRegistry returns a registry preloaded with cpp, python and javascript
// bound to the given toolchain.
func NewRegistry(tc Toolchain) *Registry {
	r := &Registry{specs: make(map[Language]Spec)}
	r.registerDefaults(tc)
	return r
}

func (r *Registry) registerDefaults(tc Toolchain) {
	flags := append([]string(nil), tc.CppFlags...)

	r.Register(Spec{
		Name:       CPP,
		SourceFile: "main.cpp",
		BinaryFile: "main",
		CompileArgs: func(src, bin string) []string {
			args := []string{tc.Gpp}
			args = append(args, flags...)
			return append(args, src, "-o", bin)
		},
		RunArgs: func(_, bin string) []string {
			return []string{"./" + bin}
		},
	})

	r.Register(Spec{
		Name:       Python,
		SourceFile: "main.py",
		RunArgs: func(src, _ string) []string {
			return []string{tc.Python, src}
		},
	})

	r.Register(Spec{
		Name:       JavaScript,
		SourceFile: "main.js",
		RunArgs: func(src, _ string) []string {
			return []string{tc.Node, src}
		},
	})
}

// Register adds or replaces a language.
func (r *Registry) Register(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
}

// Get matches the identifier exactly; "js" or "CPP" are not aliases.
func (r *Registry) Get(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[Language(name)]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, name)
	}
	return spec, nil
}

// List returns the registered languages in lexical order.
func (r *Registry) List() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Language, 0, len(r.specs))
	for name := range r.specs {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
