package lang

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

var testToolchain = Toolchain{
	Gpp:      "/opt/gcc/bin/g++",
	CppFlags: []string{"-O2", "-std=c++17"},
	Python:   "/opt/py/bin/python3",
	Node:     "/opt/node/bin/node",
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(testToolchain)
	assert.DeepEqual(t, r.List(), []Language{CPP, JavaScript, Python})

	cpp, err := r.Get("cpp")
	assert.NilError(t, err)
	assert.Assert(t, cpp.Compiled())
	assert.DeepEqual(t, cpp.CompileArgs(cpp.SourceFile, cpp.BinaryFile),
		[]string{"/opt/gcc/bin/g++", "-O2", "-std=c++17", "main.cpp", "-o", "main"})
	assert.DeepEqual(t, cpp.RunArgs(cpp.SourceFile, cpp.BinaryFile), []string{"./main"})

	py, err := r.Get("python")
	assert.NilError(t, err)
	assert.Assert(t, !py.Compiled())
	assert.DeepEqual(t, py.RunArgs(py.SourceFile, py.BinaryFile), []string{"/opt/py/bin/python3", "main.py"})

	js, err := r.Get("javascript")
	assert.NilError(t, err)
	assert.DeepEqual(t, js.RunArgs(js.SourceFile, ""), []string{"/opt/node/bin/node", "main.js"})
}

func TestRegistryRejectsUnknownAndAliases(t *testing.T) {
	r := NewRegistry(testToolchain)
	for _, name := range []string{"brainfuck", "js", "CPP", "py", ""} {
		_, err := r.Get(name)
		assert.Assert(t, errors.Is(err, ErrUnsupportedLanguage), name)
	}
}

func TestRegistryFlagsAreCopied(t *testing.T) {
	tc := testToolchain
	tc.CppFlags = []string{"-O2"}
	r := NewRegistry(tc)
	tc.CppFlags[0] = "-O0"

	cpp, err := r.Get("cpp")
	assert.NilError(t, err)
	assert.Equal(t, cpp.CompileArgs("a.cpp", "a")[1], "-O2")
}
