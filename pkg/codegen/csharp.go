package codegen

import (
	"fmt"
	"strings"
)

type cSharpBackend struct{}

var cSharpTypes = map[Type]string{
	TypeNumber:       "int",
	TypeString:       "string",
	TypeBoolean:      "bool",
	TypeNumberArray:  "int[]",
	TypeStringArray:  "string[]",
	TypeBooleanArray: "bool[]",
}

var cSharpDefaults = map[Type]string{
	TypeNumber:       "0",
	TypeString:       `""`,
	TypeBoolean:      "false",
	TypeNumberArray:  "new int[0]",
	TypeStringArray:  "new string[0]",
	TypeBooleanArray: "new bool[0]",
}

var cSharpReaders = map[Type]string{
	TypeNumber:       "int.Parse(ReadLine().Trim())",
	TypeString:       "ReadLine()",
	TypeBoolean:      "ParseBool(ReadLine())",
	TypeNumberArray:  "SplitArray(ReadLine()).Select(int.Parse).ToArray()",
	TypeStringArray:  "SplitArray(ReadLine())",
	TypeBooleanArray: "SplitArray(ReadLine()).Select(ParseBool).ToArray()",
}

func (cSharpBackend) Language() Language { return LanguageCSharp }

func (cSharpBackend) Comment(text string) string { return "// " + text }

func (cSharpBackend) MapType(t Type) string {
	if mapped, ok := cSharpTypes[t]; ok {
		return mapped
	}
	return "object"
}

func (c cSharpBackend) EmitStub(sig Signature) string {
	params := make([]string, 0, len(sig.Inputs))
	for _, input := range sig.Inputs {
		params = append(params, fmt.Sprintf("%s %s", c.MapType(input.Kind()), input.Name))
	}

	out := sig.Output.Kind()
	def, ok := cSharpDefaults[out]
	if !ok {
		def = "null"
	}

	w := newSourceWriter("    ")
	w.line(0, "using System;")
	w.line(0, "using System.Collections.Generic;")
	w.line(0, "using System.Linq;")
	w.line(0, "using System.Text;")
	w.blank()
	w.line(0, "public class Solution")
	w.line(0, "{")
	w.linef(1, "public %s %s(%s)", c.MapType(out), sig.FunctionName, strings.Join(params, ", "))
	w.line(1, "{")
	w.line(2, "// Write your code here")
	if !ok {
		w.line(2, c.Comment(unsupportedTypeNote(out, sig.Output.Name)))
	}
	w.linef(2, "return %s;", def)
	w.line(1, "}")
	w.line(0, "}")
	return w.String()
}

func (c cSharpBackend) EmitDriver(sig Signature) string {
	w := newSourceWriter("    ")
	w.line(0, "public class Program")
	w.line(0, "{")
	w.line(1, "public static void Main(string[] args)")
	w.line(1, "{")
	for _, input := range sig.Inputs {
		kind := input.Kind()
		reader, ok := cSharpReaders[kind]
		if !ok {
			w.line(2, c.Comment(unsupportedTypeNote(kind, input.Name)))
			reader = "ReadLine()"
		}
		w.linef(2, "%s %s = %s;", c.MapType(kind), input.Name, reader)
	}
	if len(sig.Inputs) > 0 {
		w.blank()
	}
	w.line(2, "Solution sol = new Solution();")
	w.linef(2, "var result = sol.%s(%s);", sig.FunctionName, sig.argNames())
	w.line(2, "Console.WriteLine(Format(result));")
	w.line(1, "}")
	w.blank()
	w.block(cSharpHelpers)
	w.line(0, "}")
	return w.String()
}

const cSharpHelpers = `
    private static string ReadLine()
    {
        return (Console.ReadLine() ?? "").TrimEnd('\r');
    }

    private static string[] SplitArray(string line)
    {
        string body = line.Trim().TrimStart('[').TrimEnd(']');
        if (string.IsNullOrWhiteSpace(body)) return new string[0];
        var parts = new List<string>();
        var item = new StringBuilder();
        bool quoted = false;
        for (int i = 0; i < body.Length; i++)
        {
            char ch = body[i];
            if (quoted)
            {
                if (ch == '\\' && i + 1 < body.Length)
                {
                    char next = body[++i];
                    item.Append(next == 'n' ? '\n' : next == 't' ? '\t' : next);
                }
                else if (ch == '"')
                {
                    quoted = false;
                }
                else
                {
                    item.Append(ch);
                }
            }
            else if (ch == '"')
            {
                quoted = true;
            }
            else if (ch == ',')
            {
                parts.Add(item.ToString());
                item.Clear();
            }
            else if (ch != ' ' && ch != '\t')
            {
                item.Append(ch);
            }
        }
        parts.Add(item.ToString());
        return parts.ToArray();
    }

    private static bool ParseBool(string value)
    {
        return value.Trim().Equals("true", StringComparison.OrdinalIgnoreCase);
    }

    private static string Format(int value) => value.ToString();
    private static string Format(bool value) => value ? "true" : "false";
    private static string Format(string value)
    {
        var builder = new StringBuilder("\"");
        foreach (char ch in value)
        {
            switch (ch)
            {
                case '"': builder.Append("\\\""); break;
                case '\\': builder.Append("\\\\"); break;
                case '\n': builder.Append("\\n"); break;
                case '\t': builder.Append("\\t"); break;
                default: builder.Append(ch); break;
            }
        }
        return builder.Append('"').ToString();
    }
    private static string Format(int[] values) => "[" + string.Join(", ", values.Select(Format)) + "]";
    private static string Format(bool[] values) => "[" + string.Join(", ", values.Select(Format)) + "]";
    private static string Format(string[] values) => "[" + string.Join(", ", values.Select(Format)) + "]";
    private static string Format(object value) => Convert.ToString(value);
`
