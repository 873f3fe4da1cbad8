package codegen

import (
	"fmt"
	"strings"
)

type cppBackend struct{}

var cppTypes = map[Type]string{
	TypeNumber:       "int",
	TypeString:       "string",
	TypeBoolean:      "bool",
	TypeNumberArray:  "vector<int>",
	TypeStringArray:  "vector<string>",
	TypeBooleanArray: "vector<bool>",
}

var cppDefaults = map[Type]string{
	TypeNumber:       "0",
	TypeString:       `""`,
	TypeBoolean:      "false",
	TypeNumberArray:  "{}",
	TypeStringArray:  "{}",
	TypeBooleanArray: "{}",
}

func (cppBackend) Language() Language { return LanguageCPP }

func (cppBackend) Comment(text string) string { return "// " + text }

func (cppBackend) MapType(t Type) string {
	if mapped, ok := cppTypes[t]; ok {
		return mapped
	}
	return "auto"
}

func (c cppBackend) EmitStub(sig Signature) string {
	params := make([]string, 0, len(sig.Inputs))
	for _, input := range sig.Inputs {
		params = append(params, fmt.Sprintf("%s %s", c.MapType(input.Kind()), input.Name))
	}

	out := sig.Output.Kind()
	w := newSourceWriter("    ")
	w.line(0, "#include <algorithm>")
	w.line(0, "#include <cctype>")
	w.line(0, "#include <iostream>")
	w.line(0, "#include <sstream>")
	w.line(0, "#include <string>")
	w.line(0, "#include <vector>")
	w.line(0, "using namespace std;")
	w.blank()
	w.line(0, "class Solution {")
	w.line(0, "public:")
	w.linef(1, "%s %s(%s) {", c.MapType(out), sig.FunctionName, strings.Join(params, ", "))
	w.line(2, "// Write your code here")
	if def, ok := cppDefaults[out]; ok {
		w.linef(2, "return %s;", def)
	} else {
		w.line(2, c.Comment(unsupportedTypeNote(out, sig.Output.Name)))
		w.line(2, "return 0;")
	}
	w.line(1, "}")
	w.line(0, "};")
	return w.String()
}

func (c cppBackend) EmitDriver(sig Signature) string {
	w := newSourceWriter("    ")
	w.block(cppHelpers)
	w.blank()
	w.line(0, "int main() {")
	w.line(1, "ios_base::sync_with_stdio(false);")
	w.line(1, "cin.tie(NULL);")
	w.blank()
	for _, input := range sig.Inputs {
		c.emitRead(w, input)
	}
	if len(sig.Inputs) > 0 {
		w.blank()
	}
	w.line(1, "Solution sol;")
	w.linef(1, "auto result = sol.%s(%s);", sig.FunctionName, sig.argNames())
	if out := sig.Output.Kind(); !out.Known() {
		w.line(1, c.Comment(unsupportedTypeNote(out, sig.Output.Name)))
	}
	w.line(1, "cout << formatValue(result) << endl;")
	w.line(1, "return 0;")
	w.line(0, "}")
	return w.String()
}

func (c cppBackend) emitRead(w *sourceWriter, input Param) {
	name := input.Name
	switch kind := input.Kind(); kind {
	case TypeNumber:
		w.linef(1, "int %s = stoi(readLine());", name)
	case TypeBoolean:
		w.linef(1, "bool %s = parseBool(readLine());", name)
	case TypeString:
		w.linef(1, "string %s = readLine();", name)
	case TypeNumberArray:
		w.linef(1, "vector<int> %s;", name)
		w.linef(1, "for (const string& item : splitArray(readLine())) %s.push_back(stoi(item));", name)
	case TypeBooleanArray:
		w.linef(1, "vector<bool> %s;", name)
		w.linef(1, "for (const string& item : splitArray(readLine())) %s.push_back(parseBool(item));", name)
	case TypeStringArray:
		w.linef(1, "vector<string> %s = splitArray(readLine());", name)
	default:
		w.line(1, c.Comment(unsupportedTypeNote(kind, name)))
		w.linef(1, "auto %s = readLine();", name)
	}
}

const cppHelpers = `
static string readLine() {
    string line;
    getline(cin, line);
    if (!line.empty() && line.back() == '\r') line.pop_back();
    return line;
}

static vector<string> splitArray(const string& line) {
    vector<string> items;
    size_t open = line.find('[');
    size_t from = open == string::npos ? 0 : open + 1;
    size_t close = line.rfind(']');
    size_t to = close == string::npos || close < from ? line.size() : close;
    string body = line.substr(from, to - from);
    if (body.find_first_not_of(" \t") == string::npos) return items;
    string item;
    bool quoted = false;
    for (size_t i = 0; i < body.size(); ++i) {
        char ch = body[i];
        if (quoted) {
            if (ch == '\\' && i + 1 < body.size()) {
                char next = body[++i];
                item += next == 'n' ? '\n' : next == 't' ? '\t' : next;
            } else if (ch == '"') {
                quoted = false;
            } else {
                item += ch;
            }
        } else if (ch == '"') {
            quoted = true;
        } else if (ch == ',') {
            items.push_back(item);
            item.clear();
        } else if (ch != ' ' && ch != '\t') {
            item += ch;
        }
    }
    items.push_back(item);
    return items;
}

static bool parseBool(string value) {
    transform(value.begin(), value.end(), value.begin(), [](unsigned char ch) { return tolower(ch); });
    return value.find("true") != string::npos || value == "1";
}

static string formatValue(int value) { return to_string(value); }
static string formatValue(bool value) { return value ? "true" : "false"; }
static string formatValue(const string& value) {
    string out = "\"";
    for (char ch : value) {
        switch (ch) {
        case '"': out += "\\\""; break;
        case '\\': out += "\\\\"; break;
        case '\n': out += "\\n"; break;
        case '\t': out += "\\t"; break;
        default: out += ch;
        }
    }
    return out + "\"";
}

template <typename T>
static string formatValue(const vector<T>& values) {
    string out = "[";
    for (size_t i = 0; i < values.size(); ++i) {
        if (i > 0) out += ", ";
        out += formatValue(static_cast<T>(values[i]));
    }
    return out + "]";
}
`
