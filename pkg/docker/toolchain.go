package docker

import (
	"fmt"
	"strings"

	"github.com/noah-isme/gema-judge/pkg/codegen"
)

const (
	stdinFile   = "stdin.txt"
	compileFile = "compile_output.txt"

	// compileFailedExit is the exit status the run script uses when the build step fails.
	compileFailedExit = 100
)

// Toolchain describes how one language is built and run inside a container.
type Toolchain struct {
	Image      string
	SourceFile string
	// Build is empty for interpreted languages.
	Build string
	Run   string
}

// Script renders the shell script executed in the sandbox. Build diagnostics go to
// compile_output.txt and a failed build exits with compileFailedExit.
func (t Toolchain) Script() string {
	var b strings.Builder
	if t.Build != "" {
		fmt.Fprintf(&b, "%s > %s 2>&1 || exit %d; ", t.Build, compileFile, compileFailedExit)
	}
	fmt.Fprintf(&b, "%s < %s", t.Run, stdinFile)
	return b.String()
}

// DefaultToolchains returns images and commands for every language the generator supports.
func DefaultToolchains() map[codegen.Language]Toolchain {
	return map[codegen.Language]Toolchain{
		codegen.LanguageC: {
			Image:      "gcc:13",
			SourceFile: "main.c",
			Build:      "gcc -O2 -o main main.c -lm",
			Run:        "./main",
		},
		codegen.LanguageCPP: {
			Image:      "gcc:13",
			SourceFile: "main.cpp",
			Build:      "g++ -O2 -std=c++17 -o main main.cpp",
			Run:        "./main",
		},
		codegen.LanguageJava: {
			Image:      "eclipse-temurin:17-jdk",
			SourceFile: "Main.java",
			Build:      "javac Main.java",
			Run:        "java -cp . Main",
		},
		codegen.LanguageJavaScript: {
			Image:      "node:18-alpine",
			SourceFile: "main.js",
			Run:        "node main.js",
		},
		codegen.LanguagePython: {
			Image:      "python:3.8-slim",
			SourceFile: "main.py",
			Run:        "python3 main.py",
		},
		codegen.LanguageCSharp: {
			Image:      "mono:6.12",
			SourceFile: "main.cs",
			Build:      "mcs -out:main.exe main.cs",
			Run:        "mono main.exe",
		},
	}
}
