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

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Protocol keys.
const (
    KeyWelcome         = "protocol.welcome"
    KeyWaitingOpponent = "protocol.waiting_opponent"
    KeyOpponentJoined  = "protocol.opponent_joined"
    KeyGameStarted     = "protocol.game_started"
    KeyOpponentTurn    = "protocol.opponent_turn"
    KeyYourTurn        = "protocol.your_turn"
    KeyPossibleMoves   = "protocol.possible_moves"
    KeyInvalidMove     = "protocol.invalid_move"
    KeyInputHint       = "protocol.input_hint"
    KeyOutcomeWin      = "protocol.outcome.win"
    KeyOutcomeTie      = "protocol.outcome.tie"
    KeyOutcomeScore    = "protocol.outcome.score"
    KeyShutdownPending = "protocol.shutdown.pending"
    KeyShutdownNow     = "protocol.shutdown.now"
)

// Catalog loads line templates from the embedded defaults and an optional override directory.
// Values are rendered with text/template (missing keys cause errors).
type Catalog struct {
    mu     sync.RWMutex
    data   map[string]string // flattened dot-keys → template text
    parsed map[string]*template.Template
}

var (
    defaultOnce sync.Once
    defaultCat  *Catalog
    defaultErr  error
)

// Default returns the catalog built from the embedded messages only.
func Default() (*Catalog, error) {
    defaultOnce.Do(func() { defaultCat, defaultErr = New("") })
    return defaultCat, defaultErr
}

// New loads the embedded default messages and then applies overrides from dir if provided.
func New(overrideDir string) (*Catalog, error) {
    base := &Catalog{data: make(map[string]string), parsed: make(map[string]*template.Template)}

    if err := base.loadEmbedded(); err != nil {
        return nil, err
    }
    if strings.TrimSpace(overrideDir) != "" {
        if err := base.applyDir(overrideDir); err != nil {
            return nil, err
        }
        if err := base.Validate(); err != nil {
            return nil, err
        }
    }
    return base, nil
}

// protocolSamples holds, per protocol key, data shaped like what callers pass.
var protocolSamples = map[string]any{
    KeyWelcome:         map[string]any{"Player": 1},
    KeyWaitingOpponent: nil,
    KeyOpponentJoined:  nil,
    KeyGameStarted:     nil,
    KeyOpponentTurn:    map[string]any{"Player": 2},
    KeyYourTurn:        nil,
    KeyPossibleMoves:   map[string]any{"Moves": "0, 1, 2"},
    KeyInvalidMove:     nil,
    KeyInputHint:       nil,
    KeyOutcomeWin:      map[string]any{"Winner": 1},
    KeyOutcomeTie:      nil,
    KeyOutcomeScore:    map[string]any{"Player": 1, "Score": 24},
    KeyShutdownPending: map[string]any{"Seconds": 10},
    KeyShutdownNow:     nil,
}

// Validate renders every protocol key once with representative data.
func (c *Catalog) Validate() error {
    keys := make([]string, 0, len(protocolSamples))
    for k := range protocolSamples { keys = append(keys, k) }
    sort.Strings(keys)
    for _, k := range keys {
        if _, err := c.Render(k, protocolSamples[k]); err != nil {
            return fmt.Errorf("messages %s: %w", k, err)
        }
    }
    return nil
}

func (c *Catalog) loadEmbedded() error {
    raw, err := fs.ReadFile(defaultFiles, "messages.en.yaml")
    if err != nil {
        return fmt.Errorf("read embedded messages: %w", err)
    }
    return c.applyYAML(raw)
}

func (c *Catalog) applyDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return fmt.Errorf("read template dir: %w", err)
    }
    files := make([]string, 0, len(entries))
    for _, e := range entries {
        if e.IsDir() { continue }
        n := e.Name()
        ext := strings.ToLower(filepath.Ext(n))
        if ext == ".yaml" || ext == ".yml" { files = append(files, n) }
    }
    sort.Strings(files)
    // a key may be overridden by one file only
    seen := make(map[string]string) // key -> filename
    for _, name := range files {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return fmt.Errorf("read %s: %w", name, err) }
        flat, err := parseYAMLToFlat(b)
        if err != nil { return fmt.Errorf("parse %s: %w", name, err) }
        for k := range flat {
            if prev, ok := seen[k]; ok {
                return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
            }
            seen[k] = name
        }
        c.set(flat)
    }
    return nil
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
    var m map[string]any
    if err := yaml.Unmarshal(b, &m); err != nil {
        return nil, err
    }
    flat := make(map[string]string)
    if err := flattenStrings(m, "", flat); err != nil {
        return nil, err
    }
    return flat, nil
}

func (c *Catalog) applyYAML(b []byte) error {
    flat, err := parseYAMLToFlat(b)
    if err != nil { return err }
    c.set(flat)
    return nil
}

func (c *Catalog) set(flat map[string]string) {
    c.mu.Lock()
    for k, v := range flat {
        c.data[k] = v
        delete(c.parsed, k)
    }
    c.mu.Unlock()
}

func flattenStrings(src any, prefix string, out map[string]string) error {
    switch v := src.(type) {
    case map[string]any:
        for k, vv := range v {
            key := k
            if prefix != "" { key = prefix + "." + k }
            if err := flattenStrings(vv, key, out); err != nil { return err }
        }
        return nil
    case map[any]any:
        tmp := make(map[string]any)
        for kk, vv := range v {
            tmp[fmt.Sprint(kk)] = vv
        }
        return flattenStrings(tmp, prefix, out)
    case string:
        if prefix == "" { return errors.New("string value without key prefix") }
        out[prefix] = v
        return nil
    case nil:
        return nil
    default:
        return fmt.Errorf("unsupported value at %s: %T", prefix, v)
    }
}

// Render executes a template by key with the provided data.
// Protocol lines are single-line; a rendered newline is an error.
func (c *Catalog) Render(key string, data any) (string, error) {
    key = strings.TrimSpace(key)
    t, err := c.template(key)
    if err != nil { return "", err }
    var b strings.Builder
    if err := t.Execute(&b, data); err != nil { return "", err }
    out := b.String()
    if strings.ContainsAny(out, "\r\n") {
        return "", fmt.Errorf("template %s renders multiple lines", key)
    }
    return out, nil
}

func (c *Catalog) template(key string) (*template.Template, error) {
    c.mu.RLock()
    t, ok := c.parsed[key]
    tpl, has := c.data[key]
    c.mu.RUnlock()
    if ok {
        return t, nil
    }
    if !has || strings.TrimSpace(tpl) == "" {
        return nil, fmt.Errorf("template not found: %s", key)
    }
    t, err := template.New(key).Option("missingkey=error").Parse(tpl)
    if err != nil { return nil, err }
    c.mu.Lock()
    c.parsed[key] = t
    c.mu.Unlock()
    return t, nil
}

// Keys returns all loaded keys, sorted.
func (c *Catalog) Keys() []string {
    c.mu.RLock()
    defer c.mu.RUnlock()
    out := make([]string, 0, len(c.data))
    for k := range c.data { out = append(out, k) }
    sort.Strings(out)
    return out
}
