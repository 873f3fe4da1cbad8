package codegen

type javaScriptBackend struct{}

// JSDoc annotations stand in for declarations since JavaScript is untyped.
var javaScriptTypes = map[Type]string{
	TypeNumber:       "number",
	TypeString:       "string",
	TypeBoolean:      "boolean",
	TypeNumberArray:  "number[]",
	TypeStringArray:  "string[]",
	TypeBooleanArray: "boolean[]",
}

var javaScriptDefaults = map[Type]string{
	TypeNumber:       "0",
	TypeString:       `""`,
	TypeBoolean:      "false",
	TypeNumberArray:  "[]",
	TypeStringArray:  "[]",
	TypeBooleanArray: "[]",
}

var javaScriptReaders = map[Type]string{
	TypeNumber:       "parseInt(__readLine().trim(), 10)",
	TypeString:       "__readLine()",
	TypeBoolean:      `__readLine().trim().toLowerCase() === "true"`,
	TypeNumberArray:  "JSON.parse(__readLine()).map(Number)",
	TypeStringArray:  "JSON.parse(__readLine()).map(String)",
	TypeBooleanArray: "JSON.parse(__readLine()).map(Boolean)",
}

func (javaScriptBackend) Language() Language { return LanguageJavaScript }

func (javaScriptBackend) Comment(text string) string { return "// " + text }

func (javaScriptBackend) MapType(t Type) string {
	if mapped, ok := javaScriptTypes[t]; ok {
		return mapped
	}
	return "*"
}

func (j javaScriptBackend) EmitStub(sig Signature) string {
	out := sig.Output.Kind()
	w := newSourceWriter("    ")
	w.line(0, "/**")
	for _, input := range sig.Inputs {
		w.linef(0, " * @param {%s} %s", j.MapType(input.Kind()), input.Name)
	}
	w.linef(0, " * @return {%s}", j.MapType(out))
	w.line(0, " */")
	w.linef(0, "function %s(%s) {", sig.FunctionName, sig.argNames())
	w.line(1, "// Write your code here")
	if def, ok := javaScriptDefaults[out]; ok {
		w.linef(1, "return %s;", def)
	} else {
		w.line(1, j.Comment(unsupportedTypeNote(out, sig.Output.Name)))
		w.line(1, "return null;")
	}
	w.line(0, "}")
	return w.String()
}

func (j javaScriptBackend) EmitDriver(sig Signature) string {
	w := newSourceWriter("    ")
	w.line(0, `const __lines = require("fs").readFileSync(0, "utf8").split(/\r?\n/);`)
	w.line(0, "let __cursor = 0;")
	w.line(0, "function __readLine() {")
	w.line(1, `return __cursor < __lines.length ? __lines[__cursor++] : "";`)
	w.line(0, "}")
	w.blank()
	for _, input := range sig.Inputs {
		kind := input.Kind()
		reader, ok := javaScriptReaders[kind]
		if !ok {
			w.line(0, j.Comment(unsupportedTypeNote(kind, input.Name)))
			reader = "__readLine()"
		}
		w.linef(0, "const %s = %s;", input.Name, reader)
	}
	w.linef(0, "const result = %s(%s);", sig.FunctionName, sig.argNames())
	w.line(0, "console.log(JSON.stringify(result));")
	return w.String()
}
