package codegen

import (
	"fmt"
	"strings"
)

// javaBackend emits a Solution class for the user and a Main class that Judge0 runs.
type javaBackend struct{}

var javaTypes = map[Type]string{
	TypeNumber:       "int",
	TypeString:       "String",
	TypeBoolean:      "boolean",
	TypeNumberArray:  "int[]",
	TypeStringArray:  "String[]",
	TypeBooleanArray: "boolean[]",
}

var javaDefaults = map[Type]string{
	TypeNumber:       "0",
	TypeString:       `""`,
	TypeBoolean:      "false",
	TypeNumberArray:  "new int[0]",
	TypeStringArray:  "new String[0]",
	TypeBooleanArray: "new boolean[0]",
}

var javaReaders = map[Type]string{
	TypeNumber:       "Integer.parseInt(readLine(scanner).trim())",
	TypeString:       "readLine(scanner)",
	TypeBoolean:      "Boolean.parseBoolean(readLine(scanner).trim())",
	TypeNumberArray:  "parseIntArray(readLine(scanner))",
	TypeStringArray:  "splitArray(readLine(scanner))",
	TypeBooleanArray: "parseBooleanArray(readLine(scanner))",
}

func (javaBackend) Language() Language { return LanguageJava }

func (javaBackend) Comment(text string) string { return "// " + text }

func (javaBackend) MapType(t Type) string {
	if mapped, ok := javaTypes[t]; ok {
		return mapped
	}
	return "Object"
}

func (j javaBackend) EmitStub(sig Signature) string {
	params := make([]string, 0, len(sig.Inputs))
	for _, input := range sig.Inputs {
		params = append(params, fmt.Sprintf("%s %s", j.MapType(input.Kind()), input.Name))
	}

	out := sig.Output.Kind()
	def, ok := javaDefaults[out]
	if !ok {
		def = "null"
	}

	w := newSourceWriter("    ")
	w.line(0, "import java.util.*;")
	w.blank()
	w.line(0, "class Solution {")
	w.linef(1, "public %s %s(%s) {", j.MapType(out), sig.FunctionName, strings.Join(params, ", "))
	w.line(2, "// Write your code here")
	if !out.Known() {
		w.line(2, j.Comment(unsupportedTypeNote(out, sig.Output.Name)))
	}
	w.linef(2, "return %s;", def)
	w.line(1, "}")
	w.line(0, "}")
	return w.String()
}

func (j javaBackend) EmitDriver(sig Signature) string {
	w := newSourceWriter("    ")
	w.line(0, "class Main {")
	w.line(1, "public static void main(String[] args) {")
	w.line(2, "Scanner scanner = new Scanner(System.in);")
	w.blank()
	for _, input := range sig.Inputs {
		kind := input.Kind()
		reader, ok := javaReaders[kind]
		if !ok {
			w.line(2, j.Comment(unsupportedTypeNote(kind, input.Name)))
			reader = "readLine(scanner)"
		}
		w.linef(2, "%s %s = %s;", j.MapType(kind), input.Name, reader)
	}
	if len(sig.Inputs) > 0 {
		w.blank()
	}
	w.line(2, "scanner.close();")
	w.blank()
	w.line(2, "Solution sol = new Solution();")
	w.linef(2, "%s result = sol.%s(%s);", j.MapType(sig.Output.Kind()), sig.FunctionName, sig.argNames())
	w.line(2, "System.out.println(format(result));")
	w.line(1, "}")
	w.blank()
	w.block(javaHelpers)
	w.line(0, "}")
	return w.String()
}

const javaHelpers = `
    private static String readLine(Scanner scanner) {
        return scanner.hasNextLine() ? scanner.nextLine() : "";
    }

    private static String[] splitArray(String line) {
        String body = line.trim();
        if (body.startsWith("[")) body = body.substring(1);
        if (body.endsWith("]")) body = body.substring(0, body.length() - 1);
        if (body.trim().isEmpty()) return new String[0];
        List<String> parts = new ArrayList<>();
        StringBuilder item = new StringBuilder();
        boolean quoted = false;
        for (int i = 0; i < body.length(); i++) {
            char ch = body.charAt(i);
            if (quoted) {
                if (ch == '\\' && i + 1 < body.length()) {
                    char next = body.charAt(++i);
                    item.append(next == 'n' ? '\n' : next == 't' ? '\t' : next);
                } else if (ch == '"') {
                    quoted = false;
                } else {
                    item.append(ch);
                }
            } else if (ch == '"') {
                quoted = true;
            } else if (ch == ',') {
                parts.add(item.toString());
                item.setLength(0);
            } else if (ch != ' ' && ch != '\t') {
                item.append(ch);
            }
        }
        parts.add(item.toString());
        return parts.toArray(new String[0]);
    }

    private static int[] parseIntArray(String line) {
        String[] parts = splitArray(line);
        int[] values = new int[parts.length];
        for (int i = 0; i < parts.length; i++) {
            values[i] = Integer.parseInt(parts[i]);
        }
        return values;
    }

    private static boolean[] parseBooleanArray(String line) {
        String[] parts = splitArray(line);
        boolean[] values = new boolean[parts.length];
        for (int i = 0; i < parts.length; i++) {
            values[i] = Boolean.parseBoolean(parts[i]);
        }
        return values;
    }

    private static String format(int value) {
        return String.valueOf(value);
    }

    private static String format(boolean value) {
        return String.valueOf(value);
    }

    private static String format(String value) {
        StringBuilder out = new StringBuilder("\"");
        for (char ch : value.toCharArray()) {
            switch (ch) {
                case '"': out.append("\\\""); break;
                case '\\': out.append("\\\\"); break;
                case '\n': out.append("\\n"); break;
                case '\t': out.append("\\t"); break;
                default: out.append(ch);
            }
        }
        return out.append('"').toString();
    }

    private static String format(int[] values) {
        StringJoiner joiner = new StringJoiner(", ", "[", "]");
        for (int value : values) joiner.add(format(value));
        return joiner.toString();
    }

    private static String format(String[] values) {
        StringJoiner joiner = new StringJoiner(", ", "[", "]");
        for (String value : values) joiner.add(format(value));
        return joiner.toString();
    }

    private static String format(boolean[] values) {
        StringJoiner joiner = new StringJoiner(", ", "[", "]");
        for (boolean value : values) joiner.add(format(value));
        return joiner.toString();
    }

    private static String format(Object value) {
        return String.valueOf(value);
    }
`
