// Package lang lists the interface languages.
package lang

import (
	"fmt"
	"strings"
)

// Language is an interface language code.
type Language string

const (
	Farsi   Language = "fa"
	English Language = "en"
	Arabic  Language = "ar"
)

// Base is the language the string table is written in.
const Base = Farsi

// Direction is the text direction of a language.
type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

// Info describes a language.
type Info struct {
	Code Language `json:"code"`
	// Name is the English name used in model prompts.
	Name string `json:"name"`
	// NativeName is how the language names itself.
	NativeName string    `json:"nativeName"`
	Dir        Direction `json:"dir"`
}

var all = []Info{
	{Code: Farsi, Name: "Farsi", NativeName: "فارسی", Dir: RTL},
	{Code: English, Name: "English", NativeName: "English", Dir: LTR},
	{Code: Arabic, Name: "Arabic", NativeName: "العربية", Dir: RTL},
}

// All returns every supported language, base language first.
func All() []Info {
	return append([]Info(nil), all...)
}

// Parse accepts a language code, case-insensitively.
func Parse(s string) (Language, error) {
	code := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, info := range all {
		if info.Code == code {
			return code, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Info returns the description of l, falling back to the base language.
func (l Language) Info() Info {
	for _, info := range all {
		if info.Code == l {
			return info
		}
	}
	return all[0]
}

func (l Language) String() string { return string(l) }
