// Package languages normalizes language tags and picks a target language to
// suggest for a request.
package languages

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
)

// ErrEmpty is returned for a blank tag.
var ErrEmpty = errors.New("language: empty tag")

// Language is a target language offered to users.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Supported lists the target languages the processor accepts, in display order.
var Supported = []Language{
	{Code: "en", Name: "English"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "ja", Name: "Japanese"},
	{Code: "de", Name: "German"},
	{Code: "pt", Name: "Portuguese"},
}

var matcher = language.NewMatcher(supportedTags())

func supportedTags() []language.Tag {
	tags := make([]language.Tag, 0, len(Supported))
	for _, l := range Supported {
		tags = append(tags, language.MustParse(l.Code))
	}
	return tags
}

// Normalize canonicalizes a BCP 47 tag ("ES" -> "es", "pt_br" -> "pt-BR").
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "_", "-"))
	if raw == "" {
		return "", ErrEmpty
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// Suggest picks the supported language closest to the caller's locale, falling
// back to the main language of the caller's country, then English.
func Suggest(locale, country string) string {
	if locale = strings.TrimSpace(locale); locale != "" {
		if code, ok := match(locale); ok {
			return code
		}
	}
	if country = strings.TrimSpace(country); country != "" {
		if region, err := language.ParseRegion(country); err == nil {
			base, _ := language.Make("und-" + region.String()).Base()
			if code, ok := match(base.String()); ok {
				return code
			}
		}
	}
	return Supported[0].Code
}

func match(raw string) (string, bool) {
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf < language.High {
		return "", false
	}
	return Supported[idx].Code, true
}
