package otshape

import (
	"slices"

	"github.com/typeforge/opentype/ot"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// see https://unicode.org/iso15924/iso15924-codes.html
var script2opentype = map[string]string{
	"Zzzz": "DFLT", // unknown
	//
	"Arab": "arab", // Arabic
	"Armn": "armn", // Armenian
	"Beng": "bng2", // Bengali
	"Cyrl": "cyrl", // Cyrillic
	"Deva": "dev2", // Devangari
	"Geor": "geor", // Georgian
	"Grek": "grek", // Greek
	"Gujr": "gjr2", // Not gujr
	"Guru": "gur2", // Not guru
	"Hang": "hang", // Hangul
	"Hans": "hani", // Han (simplified)
	"Hebr": "hebr", // Hebrew
	"Hira": "hira", // Hiragana
	"Knda": "knd2", // Kannada
	"Kana": "kana", // Katakana
	"Khmr": "khmr", // Khmer
	"Laoo": "laoo", // Lao
	"Latn": "latn", // Latin
	"Mlym": "mlm2", // Malayalam
	"Mymr": "mym2", // Myanmar, not mymr
	"Orya": "ory2", // Oriya
	"Sinh": "sinh", // Sinhala
	"Syrc": "syrc", // Syriac
	"Taml": "tml2", // Tamil
	"Telu": "tel2", // Telugu
	"Thaa": "thaa", // Thaana
	"Thai": "thai", // Thai
	"Tibt": "tibt", // Tibetan
}

// We do support this list of languages.
var supportedLanguages = map[language.Tag]string{
	language.Arabic:     "ARA",
	language.Chinese:    "ZHS",
	language.English:    "ENG",
	language.Greek:      "ELL",
	language.German:     "DEU",
	language.Hebrew:     "IWR",
	language.Japanese:   "JAN",
	language.Portuguese: "PTG",
	language.Romanian:   "ROM",
	language.Russian:    "RUS",
	language.Turkish:    "TRK",
}

// We will try to match user-preferred language against supported languages.
var supportedLanguagesMatcher language.Matcher

func init() {
	// prepare the language matcher with our list of supported languages
	langs := make([]language.Tag, len(supportedLanguages))
	i := 0
	for l := range supportedLanguages {
		langs[i] = l
		i++
	}
	supportedLanguagesMatcher = language.NewMatcher(langs)
}

// ScriptTagForScript returns the appropriate OpenType script tag for a given ISO 15924
// script code. It will return the DFLT-tag for unknown or unsupported scripts.
func ScriptTagForScript(script language.Script) ot.Tag {
	s := script.String()
	if otScr, ok := script2opentype[s]; ok {
		return ot.T(otScr)
	}
	return ot.DFLT
}

// LanguageTagForLanguage returns the appropriate OpenType language tag for a given
// BCP 47 language tag.
// If there is no supported language, that can be matched with confidence of at least `conf`,
// the DFLT-tag will be returned.
func LanguageTagForLanguage(lang language.Tag, conf language.Confidence) ot.Tag {
	l, _, c := supportedLanguagesMatcher.Match(lang)
	tracer().Debugf("OpenType language matched %s (%s) : %s", display.English.Tags().Name(l),
		display.Self.Name(l), c)
	if c < conf { // if matcher's confidence level is not high enough
		return ot.DFLT
	}
	base, _ := language.Compose(l.Base()) // re-package l to cleanly match base language constant
	if ltag, ok := supportedLanguages[base]; ok {
		return ot.T(ltag)
	}
	return ot.DFLT
}

// For some script/language combinations the Unicode de-composed (NFD) is the preferred
// form for later stages of the shaping pipeline.
// If the language list contains just DFLT, the script prefers NFD independent of the language.
var scriptPreferDecomposed = map[ot.Tag][]ot.Tag{
	ot.T("dev2"): {ot.DFLT}, // all Devangari flavours
	ot.T("bng2"): {ot.DFLT}, // all Bengali flavours
}

// prefersDecomposed signals whether a script should be de-composed before shaping.
func prefersDecomposed(script ot.Tag, lang ot.Tag) bool {
	if langs, ok := scriptPreferDecomposed[script]; ok {
		if len(langs) > 0 {
			if langs[0] == ot.DFLT || slices.Contains(langs, lang) {
				return true
			}
		}
	}
	return false
}
