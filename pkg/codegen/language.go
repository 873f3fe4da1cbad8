package codegen

import "sort"

// Language is a Judge0 language identifier. Values are forwarded verbatim to the judge.
type Language int

// Supported Judge0 language ids.
const (
	LanguageC          Language = 50
	LanguageCSharp     Language = 51
	LanguageCPP        Language = 54
	LanguageJava       Language = 62
	LanguageJavaScript Language = 63
	LanguagePython     Language = 71
)

// LanguageInfo describes a supported language for pickers and listings.
type LanguageInfo struct {
	ID   Language `json:"id"`
	Name string   `json:"name"`
}

var languageNames = map[Language]string{
	LanguageC:          "C (GCC 9.2.0)",
	LanguageCPP:        "C++ (G++ 9.2.0)",
	LanguageJava:       "Java (OpenJDK 13.0.1)",
	LanguagePython:     "Python (3.8.1)",
	LanguageJavaScript: "JavaScript (Node.js 12.14.0)",
	LanguageCSharp:     "C# (Mono 6.6.0)",
}

// String returns the display name of the language, or "unknown".
func (l Language) String() string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return "unknown"
}

// Supported reports whether l is one of the known Judge0 language ids.
func (l Language) Supported() bool {
	_, ok := languageNames[l]
	return ok
}

func sortedLanguages(backends map[Language]Backend) []LanguageInfo {
	infos := make([]LanguageInfo, 0, len(backends))
	for id := range backends {
		infos = append(infos, LanguageInfo{ID: id, Name: id.String()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
