package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// Translator resolves message keys for one UI language, falling back to English.
type Translator struct {
	tag       language.Tag
	localizer *goi18n.Localizer
}

func New(lang string) (*Translator, error) {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.toml")
	if err != nil {
		return nil, fmt.Errorf("list locale files: %w", err)
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return nil, fmt.Errorf("load locale %s: %w", file, err)
		}
	}

	tag := language.English
	if lang = strings.TrimSpace(lang); lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("parse language %q: %w", lang, err)
		}
		tag = parsed
	}

	return &Translator{
		tag:       tag,
		localizer: goi18n.NewLocalizer(bundle, tag.String(), language.English.String()),
	}, nil
}

// MustNew is New for static language tags.
func MustNew(lang string) *Translator {
	t, err := New(lang)
	if err != nil {
		panic(err)
	}

	return t
}

// Languages lists the bundled catalog languages, English first.
func Languages() []string {
	files, err := fs.Glob(localeFS, "locales/active.*.toml")
	if err != nil {
		return []string{language.English.String()}
	}

	out := []string{language.English.String()}
	for _, file := range files {
		lang := strings.TrimSuffix(strings.TrimPrefix(path.Base(file), "active."), ".toml")
		if lang == "" || lang == language.English.String() {
			continue
		}
		out = append(out, lang)
	}

	return out
}

func (t *Translator) Language() language.Tag {
	return t.tag
}

// T returns the localized text for id, or id itself when it is unknown.
func (t *Translator) T(id string) string {
	if text, ok := t.Lookup(id); ok {
		return text
	}

	return id
}

func (t *Translator) Lookup(id string) (string, bool) {
	if t == nil || t.localizer == nil || strings.TrimSpace(id) == "" {
		return "", false
	}
	// Messages served from the English fallback come with a not-found error
	// for the requested language, the text is still usable.
	text, _ := t.localizer.Localize(&goi18n.LocalizeConfig{MessageID: id})
	if text == "" {
		return "", false
	}

	return text, true
}
