package codegen

import (
	"fmt"
	"strings"
)

type pythonBackend struct{}

var pythonTypes = map[Type]string{
	TypeNumber:       "int",
	TypeString:       "str",
	TypeBoolean:      "bool",
	TypeNumberArray:  "List[int]",
	TypeStringArray:  "List[str]",
	TypeBooleanArray: "List[bool]",
}

var pythonDefaults = map[Type]string{
	TypeNumber:       "0",
	TypeString:       `""`,
	TypeBoolean:      "False",
	TypeNumberArray:  "[]",
	TypeStringArray:  "[]",
	TypeBooleanArray: "[]",
}

var pythonReaders = map[Type]string{
	TypeNumber:       "int(_read_line().strip())",
	TypeString:       "_read_line()",
	TypeBoolean:      `_read_line().strip().lower() == "true"`,
	TypeNumberArray:  "[int(v) for v in json.loads(_read_line())]",
	TypeStringArray:  "[str(v) for v in json.loads(_read_line())]",
	TypeBooleanArray: "[bool(v) for v in json.loads(_read_line())]",
}

func (pythonBackend) Language() Language { return LanguagePython }

func (pythonBackend) Comment(text string) string { return "# " + text }

func (pythonBackend) MapType(t Type) string {
	if mapped, ok := pythonTypes[t]; ok {
		return mapped
	}
	return "Any"
}

func (p pythonBackend) EmitStub(sig Signature) string {
	params := make([]string, 0, len(sig.Inputs))
	for _, input := range sig.Inputs {
		params = append(params, fmt.Sprintf("%s: %s", input.Name, p.MapType(input.Kind())))
	}

	out := sig.Output.Kind()
	w := newSourceWriter("    ")
	w.line(0, "import json")
	w.line(0, "import sys")
	w.line(0, "from typing import Any, List")
	w.blank()
	w.blank()
	w.linef(0, "def %s(%s) -> %s:", sig.FunctionName, strings.Join(params, ", "), p.MapType(out))
	w.line(1, "# Write your code here")
	if def, ok := pythonDefaults[out]; ok {
		w.linef(1, "return %s", def)
	} else {
		w.line(1, p.Comment(unsupportedTypeNote(out, sig.Output.Name)))
		w.line(1, "return None")
	}
	return w.String()
}

func (p pythonBackend) EmitDriver(sig Signature) string {
	w := newSourceWriter("    ")
	w.line(0, "def _read_line() -> str:")
	w.line(1, `return sys.stdin.readline().rstrip("\r\n")`)
	w.blank()
	w.blank()
	w.line(0, `if __name__ == "__main__":`)
	for _, input := range sig.Inputs {
		kind := input.Kind()
		reader, ok := pythonReaders[kind]
		if !ok {
			w.line(1, p.Comment(unsupportedTypeNote(kind, input.Name)))
			reader = "_read_line()"
		}
		w.linef(1, "%s = %s", input.Name, reader)
	}
	w.linef(1, "result = %s(%s)", sig.FunctionName, sig.argNames())
	w.line(1, "print(json.dumps(result, ensure_ascii=False))")
	return w.String()
}
