package msgcat

import (
    "embed"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "text/template"

    yaml "gopkg.in/yaml.v3"
)

//go:embed messages.*.yaml
var defaultFiles embed.FS

const DefaultLocale = "en"

// Catalog holds client-facing strings keyed by dotted path.
// Values are text/template sources; missing data keys fail rendering.
type Catalog struct {
    mu     sync.RWMutex
    locale string
    data   map[string]string
    tpls   map[string]*template.Template
}

// New loads the embedded catalog for locale, then applies *.yaml overrides from dir.
// Unknown locales fall back to English key by key.
func New(locale, overrideDir string) (*Catalog, error) {
    locale = strings.ToLower(strings.TrimSpace(locale))
    if locale == "" { locale = DefaultLocale }
    c := &Catalog{locale: locale, data: make(map[string]string), tpls: make(map[string]*template.Template)}

    if err := c.loadEmbedded(DefaultLocale); err != nil {
        return nil, err
    }
    if locale != DefaultLocale {
        if err := c.loadEmbedded(locale); err != nil {
            return nil, err
        }
    }
    if strings.TrimSpace(overrideDir) != "" {
        if err := c.applyDir(overrideDir); err != nil {
            return nil, err
        }
    }
    return c, nil
}

func (c *Catalog) Locale() string { return c.locale }

func (c *Catalog) loadEmbedded(locale string) error {
    flat, err := readFlat(defaultFiles, localeFile(locale))
    if errors.Is(err, fs.ErrNotExist) {
        return fmt.Errorf("unknown message locale %q", locale)
    }
    if err != nil {
        return fmt.Errorf("embedded messages: %w", err)
    }
    c.set(flat)
    return nil
}

func localeFile(locale string) string { return "messages." + locale + ".yaml" }

// applyDir layers operator overrides on top of the embedded strings.
// messages.<locale>.yaml files only apply to their own locale; any other
// *.yaml or *.yml file applies to every locale. A key may be overridden once.
func (c *Catalog) applyDir(dir string) error {
    fsys := os.DirFS(dir)
    names, err := c.overrideFiles(fsys)
    if err != nil {
        return fmt.Errorf("read template dir: %w", err)
    }
    owner := make(map[string]string)
    for _, name := range names {
        flat, err := readFlat(fsys, name)
        if err != nil {
            return err
        }
        for k := range flat {
            if prev, dup := owner[k]; dup {
                return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
            }
            owner[k] = name
        }
        c.set(flat)
    }
    return nil
}

func (c *Catalog) overrideFiles(fsys fs.FS) ([]string, error) {
    entries, err := fs.ReadDir(fsys, ".")
    if err != nil {
        return nil, err
    }
    var names []string
    for _, e := range entries {
        name := e.Name()
        if e.IsDir() {
            continue
        }
        switch strings.ToLower(filepath.Ext(name)) {
        case ".yaml", ".yml":
        default:
            continue
        }
        if loc, ok := fileLocale(name); ok && loc != c.locale {
            continue
        }
        names = append(names, name)
    }
    sort.Strings(names)
    return names, nil
}

// fileLocale extracts xx from messages.xx.yaml.
func fileLocale(name string) (string, bool) {
    rest, ok := strings.CutPrefix(strings.ToLower(name), "messages.")
    if !ok {
        return "", false
    }
    ext := filepath.Ext(rest)
    loc := strings.TrimSuffix(rest, ext)
    if ext == "" || loc == "" || strings.Contains(loc, ".") {
        return "", false
    }
    return loc, true
}

func readFlat(fsys fs.FS, name string) (map[string]string, error) {
    raw, err := fs.ReadFile(fsys, name)
    if err != nil {
        return nil, err
    }
    flat, err := parseYAMLToFlat(raw)
    if err != nil {
        return nil, fmt.Errorf("parse %s: %w", name, err)
    }
    return flat, nil
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
    var root map[string]any
    if err := yaml.Unmarshal(b, &root); err != nil {
        return nil, err
    }
    flat := make(map[string]string)
    var walk func(prefix string, v any) error
    walk = func(prefix string, v any) error {
        switch node := v.(type) {
        case nil:
            return nil
        case string:
            if prefix == "" { return errors.New("string value without key prefix") }
            flat[prefix] = node
            return nil
        case map[string]any:
            for k, child := range node {
                key := k
                if prefix != "" { key = prefix + "." + k }
                if err := walk(key, child); err != nil { return err }
            }
            return nil
        default:
            return fmt.Errorf("unsupported value at %s: %T", prefix, v)
        }
    }
    if err := walk("", root); err != nil {
        return nil, err
    }
    return flat, nil
}

// set replaces keys and drops their cached templates.
func (c *Catalog) set(flat map[string]string) {
    c.mu.Lock()
    defer c.mu.Unlock()
    for k, v := range flat {
        c.data[k] = v
        delete(c.tpls, k)
    }
}

// Render executes the template stored under key. Parsed templates are cached.
func (c *Catalog) Render(key string, data any) (string, error) {
    key = strings.TrimSpace(key)
    c.mu.RLock()
    t, cached := c.tpls[key]
    src, ok := c.data[key]
    c.mu.RUnlock()
    if !cached {
        if !ok || strings.TrimSpace(src) == "" {
            return "", fmt.Errorf("template not found: %s", key)
        }
        parsed, err := template.New(key).Option("missingkey=error").Parse(src)
        if err != nil { return "", err }
        c.mu.Lock()
        c.tpls[key] = parsed
        c.mu.Unlock()
        t = parsed
    }
    var b strings.Builder
    if err := t.Execute(&b, data); err != nil { return "", err }
    return b.String(), nil
}

// Keys lists every loaded key, sorted.
func (c *Catalog) Keys() []string {
    c.mu.RLock()
    defer c.mu.RUnlock()
    out := make([]string, 0, len(c.data))
    for k := range c.data { out = append(out, k) }
    sort.Strings(out)
    return out
}
