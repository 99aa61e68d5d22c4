//go:build unix

package executor

import (
	"context"
	"os/exec"
	"testing"

	"arenaengine/lang"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func lookPathOrSkip(t *testing.T, name string) string {
	t.Helper()
	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not installed", name)
	}
	return p
}

func TestEchoProgramPerLanguage(t *testing.T) {
	cases := []struct {
		language string
		binary   string
		source   string
	}{
		{
			language: "cpp",
			binary:   "g++",
			source: `#include <iostream>
int main() { int a, b; std::cin >> a >> b; std::cout << a + b << std::endl; }
`,
		},
		{
			language: "python",
			binary:   "python3",
			source:   "a, b = map(int, input().split())\nprint(a + b)\n",
		},
		{
			language: "javascript",
			binary:   "node",
			source: `const [a, b] = require("fs").readFileSync(0, "utf8").trim().split(/\s+/).map(Number);
console.log(a + b);
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.language, func(t *testing.T) {
			bin := lookPathOrSkip(t, tc.binary)
			toolchain := lang.Toolchain{Gpp: bin, Python: bin, Node: bin, CppFlags: []string{"-O2"}}
			engine, root := newTestEngine(t, Options{Registry: lang.NewRegistry(toolchain)})

			res, err := engine.Execute(context.Background(), ExecutionRequest{
				SourceCode: tc.source,
				Language:   tc.language,
				Stdin:      "3 4\n",
			})
			assert.NilError(t, err)
			assert.Check(t, res.Succeeded, res.Diagnostic)
			assert.Check(t, is.Equal(res.Stdout, "7\n"))
			assertNoWorkspaces(t, root)
		})
	}
}

func TestCppCompileErrorCarriesDiagnostic(t *testing.T) {
	gpp := lookPathOrSkip(t, "g++")
	engine, root := newTestEngine(t, Options{Registry: lang.NewRegistry(lang.Toolchain{Gpp: gpp})})

	res, err := engine.Execute(context.Background(), ExecutionRequest{
		SourceCode: "int main() { return 0 }\n",
		Language:   "cpp",
	})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(res.Verdict, VerdictCompileError))
	assert.Check(t, is.Contains(res.Diagnostic, "error"))
	assertNoWorkspaces(t, root)
}
