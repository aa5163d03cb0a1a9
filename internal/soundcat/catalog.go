package soundcat

import (
    "embed"
    "errors"
    "fmt"
    "io/fs"
    "math/rand"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"

    yaml "gopkg.in/yaml.v3"
)

//go:embed sounds.yaml
var defaultFiles embed.FS

// Sound is one reference track battles remix against.
type Sound struct {
    ID     string   `yaml:"id"`
    Title  string   `yaml:"title"`
    Artist string   `yaml:"artist"`
    BPM    int      `yaml:"bpm"`
    Scenes []string `yaml:"scenes"`
}

type catalogFile struct {
    Sounds []Sound `yaml:"sounds"`
}

var ErrNoSounds = errors.New("no sounds available for scene")

// Catalog holds the reference tracks loaded from the embedded defaults plus
// an optional override directory. Later files win on duplicate ids.
type Catalog struct {
    mu     sync.RWMutex
    byID   map[string]Sound
    sorted []string
}

// New loads the embedded catalog and then applies *.yaml overrides from dir
// if provided.
func New(overrideDir string) (*Catalog, error) {
    c := &Catalog{byID: make(map[string]Sound)}
    raw, err := fs.ReadFile(defaultFiles, "sounds.yaml")
    if err != nil {
        return nil, fmt.Errorf("read embedded sounds: %w", err)
    }
    if err := c.applyYAML(raw); err != nil {
        return nil, err
    }
    if strings.TrimSpace(overrideDir) != "" {
        if err := c.applyDir(overrideDir); err != nil {
            return nil, err
        }
    }
    if len(c.byID) == 0 {
        return nil, ErrNoSounds
    }
    return c, nil
}

func (c *Catalog) applyDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return fmt.Errorf("read sound override dir: %w", err)
    }
    files := make([]string, 0, len(entries))
    for _, e := range entries {
        if e.IsDir() { continue }
        n := e.Name()
        if strings.HasSuffix(n, ".yaml") || strings.HasSuffix(n, ".yml") {
            files = append(files, n)
        }
    }
    sort.Strings(files)
    for _, n := range files {
        raw, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil {
            return err
        }
        if err := c.applyYAML(raw); err != nil {
            return fmt.Errorf("%s: %w", n, err)
        }
    }
    return nil
}

func (c *Catalog) applyYAML(raw []byte) error {
    var f catalogFile
    if err := yaml.Unmarshal(raw, &f); err != nil {
        return err
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    for _, s := range f.Sounds {
        id := strings.TrimSpace(s.ID)
        if id == "" { continue }
        s.ID = id
        c.byID[id] = s
    }
    c.sorted = c.sorted[:0]
    for id := range c.byID {
        c.sorted = append(c.sorted, id)
    }
    sort.Strings(c.sorted)
    return nil
}

// Get returns a sound by id.
func (c *Catalog) Get(id string) (Sound, bool) {
    c.mu.RLock()
    defer c.mu.RUnlock()
    s, ok := c.byID[strings.TrimSpace(id)]
    return s, ok
}

// Len reports the catalog size.
func (c *Catalog) Len() int {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return len(c.byID)
}

// PickForScene chooses a random track tagged with scene. An empty scene (or
// a scene no track carries) falls back to the whole catalog, so battle
// creation never stalls on catalog gaps.
func (c *Catalog) PickForScene(scene string) (Sound, error) {
    scene = strings.ToLower(strings.TrimSpace(scene))
    c.mu.RLock()
    defer c.mu.RUnlock()
    if len(c.sorted) == 0 {
        return Sound{}, ErrNoSounds
    }
    var pool []string
    if scene != "" {
        for _, id := range c.sorted {
            if hasScene(c.byID[id], scene) {
                pool = append(pool, id)
            }
        }
    }
    if len(pool) == 0 {
        pool = c.sorted
    }
    return c.byID[pool[rand.Intn(len(pool))]], nil
}

// Scenes lists every distinct scene tag in the catalog.
func (c *Catalog) Scenes() []string {
    c.mu.RLock()
    defer c.mu.RUnlock()
    seen := make(map[string]bool)
    for _, id := range c.sorted {
        for _, sc := range c.byID[id].Scenes {
            seen[strings.ToLower(strings.TrimSpace(sc))] = true
        }
    }
    out := make([]string, 0, len(seen))
    for sc := range seen {
        if sc != "" { out = append(out, sc) }
    }
    sort.Strings(out)
    return out
}

func hasScene(s Sound, scene string) bool {
    for _, sc := range s.Scenes {
        if strings.ToLower(strings.TrimSpace(sc)) == scene {
            return true
        }
    }
    return false
}
