// Package language knows the spoken languages the recognition engines accept.
package language

import (
	"sort"
	"strings"
)

// Auto is the configured value that lets the engine detect the language.
const Auto = "auto"

// names maps ISO 639-1 codes accepted by whisper to English names.
var names = map[string]string{
	"af": "Afrikaans", "ar": "Arabic", "hy": "Armenian", "az": "Azerbaijani",
	"be": "Belarusian", "bs": "Bosnian", "bg": "Bulgarian", "ca": "Catalan",
	"zh": "Chinese", "hr": "Croatian", "cs": "Czech", "da": "Danish",
	"nl": "Dutch", "en": "English", "et": "Estonian", "fi": "Finnish",
	"fr": "French", "gl": "Galician", "de": "German", "el": "Greek",
	"he": "Hebrew", "hi": "Hindi", "hu": "Hungarian", "is": "Icelandic",
	"id": "Indonesian", "it": "Italian", "ja": "Japanese", "kn": "Kannada",
	"kk": "Kazakh", "ko": "Korean", "lv": "Latvian", "lt": "Lithuanian",
	"mk": "Macedonian", "ms": "Malay", "mr": "Marathi", "mi": "Maori",
	"ne": "Nepali", "no": "Norwegian", "fa": "Persian", "pl": "Polish",
	"pt": "Portuguese", "ro": "Romanian", "ru": "Russian", "sr": "Serbian",
	"sk": "Slovak", "sl": "Slovenian", "es": "Spanish", "sw": "Swahili",
	"sv": "Swedish", "tl": "Tagalog", "ta": "Tamil", "th": "Thai",
	"tr": "Turkish", "uk": "Ukrainian", "ur": "Urdu", "vi": "Vietnamese",
	"cy": "Welsh", "ga": "Irish", "eu": "Basque",
}

// Normalize lowercases code and maps the empty value to Auto.
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return Auto
	}
	return code
}

// Valid reports whether code is Auto or a known language.
func Valid(code string) bool {
	code = Normalize(code)
	if code == Auto {
		return true
	}
	_, ok := names[code]
	return ok
}

// IsAuto reports whether code asks for detection.
func IsAuto(code string) bool { return Normalize(code) == Auto }

// Label renders a code for menus, e.g. "French (fr)".
func Label(code string) string {
	code = Normalize(code)
	if code == Auto {
		return "Auto-detect"
	}
	if name, ok := names[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

// Codes returns the known language codes sorted by name.
func Codes() []string {
	codes := make([]string, 0, len(names))
	for c := range names {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return names[codes[i]] < names[codes[j]] })
	return codes
}
