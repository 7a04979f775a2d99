package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.yaml
var builtin embed.FS

// Bundle holds one catalog per locale and matches requested locales
// against them.
type Bundle struct {
	fallback language.Tag
	tags     []language.Tag
	catalogs []*Catalog
	matcher  language.Matcher
}

// Default returns the catalogs shipped with the module, English first.
func Default() (*Bundle, error) {
	return LoadFS(builtin, "locales", language.English)
}

// LoadDir reads every *.yaml catalog in dir.
func LoadDir(dir string, fallback language.Tag) (*Bundle, error) {
	return LoadFS(os.DirFS(dir), ".", fallback)
}

// LoadFS reads every *.yaml catalog under root of fsys. The fallback
// locale must be among them.
func LoadFS(fsys fs.FS, root string, fallback language.Tag) (*Bundle, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("i18n: read catalogs: %w", err)
	}
	b := &Bundle{fallback: fallback}
	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("i18n: %s: %w", e.Name(), err)
		}
		c, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		b.add(c)
	}
	return b, b.finish()
}

// NewBundle builds a bundle from parsed catalogs.
func NewBundle(fallback language.Tag, catalogs ...*Catalog) (*Bundle, error) {
	b := &Bundle{fallback: fallback}
	for _, c := range catalogs {
		b.add(c)
	}
	return b, b.finish()
}

func (b *Bundle) add(c *Catalog) {
	if c.tag == b.fallback {
		// the matcher prefers its first tag when nothing matches
		b.tags = append([]language.Tag{c.tag}, b.tags...)
		b.catalogs = append([]*Catalog{c}, b.catalogs...)
		return
	}
	b.tags = append(b.tags, c.tag)
	b.catalogs = append(b.catalogs, c)
}

func (b *Bundle) finish() error {
	if len(b.catalogs) == 0 || b.tags[0] != b.fallback {
		return fmt.Errorf("i18n: no catalog for fallback locale %s", b.fallback)
	}
	b.matcher = language.NewMatcher(b.tags)
	return nil
}

// Catalog returns the best catalog for the requested locales, e.g. the
// values of an Accept-Language header or a configured locale.
func (b *Bundle) Catalog(requested ...string) *Catalog {
	var want []language.Tag
	for _, r := range requested {
		tags, _, err := language.ParseAcceptLanguage(r)
		if err != nil {
			continue
		}
		want = append(want, tags...)
	}
	_, idx, conf := b.matcher.Match(want...)
	if conf == language.No {
		idx = 0
	}
	return b.catalogs[idx]
}

// Locales lists the loaded locales, fallback first.
func (b *Bundle) Locales() []language.Tag {
	return append([]language.Tag(nil), b.tags...)
}
