// Package i18n resolves user-facing strings for the page chrome.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// Message keys used by the engine.
const (
	KeyTooltip     = "comfortModeTooltip"
	KeyTooltipOn   = "comfortModeTooltipOn"
	KeyExitTooltip = "comfortModeExitTooltip"
	KeyNoVideo     = "noVideoFound"
)

// DefaultLocale is used when no requested locale matches.
const DefaultLocale = "en"

//go:embed locales/*.yaml
var embeddedLocales embed.FS

type localeFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog holds messages for every known locale.
type Catalog struct {
	builder  *catalog.Builder
	tags     []language.Tag
	matcher  language.Matcher
	messages map[language.Tag]map[string]string
	fallback language.Tag
}

// LoadEmbedded loads the locales shipped with the binary.
func LoadEmbedded(fallback string) (*Catalog, error) {
	return LoadFromFS(embeddedLocales, fallback)
}

// LoadFromFS loads every locales/*.yaml file in fsys.
func LoadFromFS(fsys fs.FS, fallback string) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("i18n: glob locales: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("i18n: no locale files found")
	}
	sort.Strings(paths)

	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultLocale
	}
	fallbackTag, err := language.Parse(fallback)
	if err != nil {
		return nil, fmt.Errorf("i18n: parse fallback locale %q: %w", fallback, err)
	}

	c := &Catalog{
		builder:  catalog.NewBuilder(catalog.Fallback(fallbackTag)),
		messages: make(map[language.Tag]map[string]string),
		fallback: fallbackTag,
	}

	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", p, err)
		}
		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", p, err)
		}
		if err := c.add(p, file); err != nil {
			return nil, err
		}
	}

	if _, ok := c.messages[fallbackTag]; !ok {
		return nil, fmt.Errorf("i18n: fallback locale %s is not defined", fallbackTag)
	}

	// The matcher prefers its first tag when nothing matches.
	tags := []language.Tag{fallbackTag}
	for tag := range c.messages {
		if tag != fallbackTag {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags[1:], func(i, j int) bool { return tags[1+i].String() < tags[1+j].String() })
	c.tags = tags
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

func (c *Catalog) add(p string, file localeFile) error {
	locale := strings.TrimSpace(file.Locale)
	if locale == "" {
		return fmt.Errorf("i18n: %s: locale is required", p)
	}
	if want := strings.TrimSuffix(path.Base(p), path.Ext(p)); locale != want {
		return fmt.Errorf("i18n: %s: locale %q must match file name %q", p, locale, want)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("i18n: %s: parse locale: %w", p, err)
	}
	if len(file.Messages) == 0 {
		return fmt.Errorf("i18n: %s: messages are required", p)
	}
	msgs := make(map[string]string, len(file.Messages))
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("i18n: %s: message key cannot be blank", p)
		}
		if err := c.builder.SetString(tag, key, value); err != nil {
			return fmt.Errorf("i18n: %s: set %q: %w", p, key, err)
		}
		msgs[key] = value
	}
	c.messages[tag] = msgs
	return nil
}

// Locales lists the loaded locales, fallback first.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.tags))
	for _, t := range c.tags {
		out = append(out, t.String())
	}
	return out
}

// Localizer returns a lookup bound to the best locale for accept, which may be
// a single tag ("ja-JP") or an Accept-Language list ("ja,en;q=0.8").
func (c *Catalog) Localizer(accept string) *Localizer {
	tag := c.fallback
	if desired, _, err := language.ParseAcceptLanguage(accept); err == nil && len(desired) > 0 {
		_, idx, conf := c.matcher.Match(desired...)
		if conf != language.No {
			tag = c.tags[idx]
		}
	}
	l := &Localizer{
		tag:      tag,
		printer:  message.NewPrinter(tag, message.Catalog(c.builder)),
		messages: c.messages[tag],
	}
	if tag != c.fallback {
		l.fallback = &Localizer{
			tag:      c.fallback,
			printer:  message.NewPrinter(c.fallback, message.Catalog(c.builder)),
			messages: c.messages[c.fallback],
		}
	}
	return l
}

// Localizer resolves message keys for one locale.
type Localizer struct {
	tag      language.Tag
	printer  *message.Printer
	messages map[string]string
	fallback *Localizer
}

// Tag returns the resolved locale.
func (l *Localizer) Tag() language.Tag {
	return l.tag
}

// Lookup returns the message for key, falling back to the catalog's fallback
// locale and finally to the key itself.
func (l *Localizer) Lookup(key string) string {
	if l == nil {
		return key
	}
	if _, ok := l.messages[key]; ok {
		return l.printer.Sprintf(key)
	}
	if l.fallback != nil {
		return l.fallback.Lookup(key)
	}
	return key
}
