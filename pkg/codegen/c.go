package codegen

import (
	"fmt"
	"strings"
)

// cBackend passes arrays as pointer plus length and returns them through an out parameter.
type cBackend struct{}

var cTypes = map[Type]string{
	TypeNumber:       "int",
	TypeString:       "char*",
	TypeBoolean:      "bool",
	TypeNumberArray:  "int*",
	TypeStringArray:  "char**",
	TypeBooleanArray: "bool*",
}

var cDefaults = map[Type]string{
	TypeNumber:  "0",
	TypeString:  `""`,
	TypeBoolean: "false",
}

func (cBackend) Language() Language { return LanguageC }

func (cBackend) Comment(text string) string { return "// " + text }

func (cBackend) MapType(t Type) string {
	if mapped, ok := cTypes[t]; ok {
		return mapped
	}
	return "void*"
}

func (c cBackend) params(sig Signature) string {
	params := make([]string, 0, len(sig.Inputs)+1)
	for _, input := range sig.Inputs {
		kind := input.Kind()
		params = append(params, fmt.Sprintf("%s %s", c.MapType(kind), input.Name))
		if kind.Known() && kind.IsArray() {
			params = append(params, fmt.Sprintf("int %sSize", input.Name))
		}
	}
	if out := sig.Output.Kind(); out.Known() && out.IsArray() {
		params = append(params, "int* returnSize")
	}
	if len(params) == 0 {
		return "void"
	}
	return strings.Join(params, ", ")
}

func (c cBackend) EmitStub(sig Signature) string {
	out := sig.Output.Kind()
	w := newSourceWriter("    ")
	w.line(0, "#include <stdbool.h>")
	w.line(0, "#include <stdio.h>")
	w.line(0, "#include <stdlib.h>")
	w.line(0, "#include <string.h>")
	w.blank()
	w.linef(0, "%s %s(%s) {", c.MapType(out), sig.FunctionName, c.params(sig))
	w.line(1, "// Write your code here")
	switch {
	case out.Known() && out.IsArray():
		w.line(1, "*returnSize = 0;")
		w.line(1, "return NULL;")
	case out.Known():
		w.linef(1, "return %s;", cDefaults[out])
	default:
		w.line(1, c.Comment(unsupportedTypeNote(out, sig.Output.Name)))
		w.line(1, "return NULL;")
	}
	w.line(0, "}")
	return w.String()
}

func (c cBackend) EmitDriver(sig Signature) string {
	w := newSourceWriter("    ")
	w.block(cReadLine)
	if usesKind(sig, func(t Type) bool { return t.IsArray() }) {
		w.blank()
		w.block(cSplitArray)
	}
	if usesKind(sig, func(t Type) bool { return t.Elem() == TypeBoolean }) {
		w.blank()
		w.block(cParseBool)
	}
	if out := sig.Output.Kind(); out == TypeString || out == TypeStringArray {
		w.blank()
		w.block(cPrintQuoted)
	}
	w.blank()
	w.line(0, "int main(void) {")

	args := make([]string, 0, len(sig.Inputs)+1)
	for _, input := range sig.Inputs {
		c.emitRead(w, input)
		args = append(args, input.Name)
		if kind := input.Kind(); kind.Known() && kind.IsArray() {
			args = append(args, input.Name+"Size")
		}
	}
	if len(sig.Inputs) > 0 {
		w.blank()
	}

	out := sig.Output.Kind()
	if out.Known() && out.IsArray() {
		w.line(1, "int resultSize = 0;")
		args = append(args, "&resultSize")
	}
	w.linef(1, "%s result = %s(%s);", c.MapType(out), sig.FunctionName, strings.Join(args, ", "))
	c.emitPrint(w, out, sig.Output.Name)
	w.line(1, "return 0;")
	w.line(0, "}")
	return w.String()
}

func (c cBackend) emitRead(w *sourceWriter, input Param) {
	name := input.Name
	switch kind := input.Kind(); kind {
	case TypeNumber:
		w.linef(1, "char* %s_line = read_line();", name)
		w.linef(1, "int %s = atoi(%s_line);", name, name)
		w.linef(1, "free(%s_line);", name)
	case TypeBoolean:
		w.linef(1, "char* %s_line = read_line();", name)
		w.linef(1, "bool %s = parse_bool(%s_line);", name, name)
		w.linef(1, "free(%s_line);", name)
	case TypeString:
		w.linef(1, "char* %s = read_line();", name)
	case TypeNumberArray, TypeBooleanArray:
		elem, parse := "int", "atoi"
		if kind == TypeBooleanArray {
			elem, parse = "bool", "parse_bool"
		}
		w.linef(1, "int %sSize = 0;", name)
		w.linef(1, "char** %s_items = split_array(read_line(), &%sSize);", name, name)
		w.linef(1, "%s* %s = malloc(sizeof(%s) * (%sSize > 0 ? %sSize : 1));", elem, name, elem, name, name)
		w.linef(1, "for (int i = 0; i < %sSize; i++) {", name)
		w.linef(2, "%s[i] = %s(%s_items[i]);", name, parse, name)
		w.line(1, "}")
	case TypeStringArray:
		w.linef(1, "int %sSize = 0;", name)
		w.linef(1, "char** %s = split_array(read_line(), &%sSize);", name, name)
	default:
		w.line(1, c.Comment(unsupportedTypeNote(kind, name)))
		w.linef(1, "void* %s = read_line();", name)
	}
}

func (c cBackend) emitPrint(w *sourceWriter, out Type, name string) {
	switch out {
	case TypeNumber:
		w.line(1, `printf("%d\n", result);`)
	case TypeBoolean:
		w.line(1, `printf("%s\n", result ? "true" : "false");`)
	case TypeString:
		w.line(1, "print_quoted(result);")
		w.line(1, `printf("\n");`)
	case TypeNumberArray, TypeStringArray, TypeBooleanArray:
		element := `printf("%d", result[i]);`
		if out == TypeStringArray {
			element = "print_quoted(result[i]);"
		} else if out == TypeBooleanArray {
			element = `printf("%s", result[i] ? "true" : "false");`
		}
		w.line(1, `printf("[");`)
		w.line(1, "for (int i = 0; i < resultSize; i++) {")
		w.line(2, `if (i > 0) printf(", ");`)
		w.line(2, element)
		w.line(1, "}")
		w.line(1, `printf("]\n");`)
	default:
		w.line(1, c.Comment(unsupportedTypeNote(out, name)))
		w.line(1, "(void)result;")
	}
}

const cReadLine = `
static char* read_line(void) {
    size_t cap = 256, len = 0;
    char* buf = malloc(cap);
    int ch;
    while ((ch = getchar()) != EOF && ch != '\n') {
        if (len + 1 >= cap) {
            cap *= 2;
            buf = realloc(buf, cap);
        }
        buf[len++] = (char)ch;
    }
    if (len > 0 && buf[len - 1] == '\r') len--;
    buf[len] = '\0';
    return buf;
}
`

// split_array tokenizes a JSON-style array line in place. Commas inside quotes do not split and
// \" \\ \n \t escapes are decoded; whitespace outside quotes is dropped.
const cSplitArray = `
static char** split_array(char* line, int* count) {
    char* start = strchr(line, '[');
    start = start != NULL ? start + 1 : line;
    char* end = strrchr(start, ']');
    if (end != NULL) *end = '\0';
    char** items = malloc(sizeof(char*) * (strlen(start) + 1));
    *count = 0;
    if (strspn(start, " \t") == strlen(start)) return items;
    char* out = start;
    char* item = out;
    int quoted = 0;
    for (char* p = start; *p != '\0'; p++) {
        if (quoted) {
            if (*p == '\\' && p[1] != '\0') {
                p++;
                *out++ = *p == 'n' ? '\n' : *p == 't' ? '\t' : *p;
            } else if (*p == '"') {
                quoted = 0;
            } else {
                *out++ = *p;
            }
        } else if (*p == '"') {
            quoted = 1;
        } else if (*p == ',') {
            *out++ = '\0';
            items[(*count)++] = item;
            item = out;
        } else if (*p != ' ' && *p != '\t') {
            *out++ = *p;
        }
    }
    *out = '\0';
    items[(*count)++] = item;
    return items;
}
`

const cPrintQuoted = `
static void print_quoted(const char* text) {
    putchar('"');
    for (const char* p = text; *p != '\0'; p++) {
        switch (*p) {
        case '"': fputs("\\\"", stdout); break;
        case '\\': fputs("\\\\", stdout); break;
        case '\n': fputs("\\n", stdout); break;
        case '\t': fputs("\\t", stdout); break;
        default: putchar(*p);
        }
    }
    putchar('"');
}
`

const cParseBool = `
static bool parse_bool(const char* text) {
    while (*text == ' ' || *text == '\t') text++;
    return strncmp(text, "true", 4) == 0 || strncmp(text, "True", 4) == 0 || strcmp(text, "1") == 0;
}
`
