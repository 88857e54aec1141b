// Package roster loads team rosters referenced by generate requests.
package roster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/picklist/internal/domain/model"
)

// ErrUnknownRoster is returned for references with no roster file.
var ErrUnknownRoster = errors.New("unknown roster")

var validRef = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Roster is a set of teams plus the game description sent to the model.
type Roster struct {
	GameContext string       `yaml:"game_context"`
	Teams       []model.Team `yaml:"teams"`
}

// Provider resolves a roster reference.
type Provider interface {
	Roster(ctx context.Context, ref string) (Roster, error)
}

// FileProvider reads <dir>/<ref>.yaml and keeps parsed rosters in memory.
type FileProvider struct {
	dir string

	mu    sync.RWMutex
	cache map[string]Roster
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir, cache: make(map[string]Roster)}
}

// Roster implements Provider.
func (p *FileProvider) Roster(ctx context.Context, ref string) (Roster, error) {
	if !validRef.MatchString(ref) || ref == "." || ref == ".." {
		return Roster{}, model.NewError("roster.load", model.ErrValidation, fmt.Sprintf("invalid roster_ref %q", ref))
	}

	p.mu.RLock()
	r, ok := p.cache[ref]
	p.mu.RUnlock()
	if ok {
		return r, nil
	}

	raw, err := os.ReadFile(filepath.Join(p.dir, ref+".yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return Roster{}, model.WrapError("roster.load", model.ErrNotFound, fmt.Errorf("%w: %s", ErrUnknownRoster, ref))
	}
	if err != nil {
		return Roster{}, fmt.Errorf("read roster %s: %w", ref, err)
	}

	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Roster{}, model.WrapError("roster.load", model.ErrValidation, fmt.Errorf("parse roster %s: %w", ref, err))
	}
	if len(r.Teams) == 0 {
		return Roster{}, model.NewError("roster.load", model.ErrValidation, fmt.Sprintf("roster %s has no teams", ref))
	}

	p.mu.Lock()
	p.cache[ref] = r
	p.mu.Unlock()
	return r, nil
}

// Static serves rosters from memory.
type Static map[string]Roster

// Roster implements Provider.
func (s Static) Roster(ctx context.Context, ref string) (Roster, error) {
	r, ok := s[ref]
	if !ok {
		return Roster{}, model.WrapError("roster.load", model.ErrNotFound, fmt.Errorf("%w: %s", ErrUnknownRoster, ref))
	}
	return r, nil
}
