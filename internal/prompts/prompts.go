// Package prompts is the PromptRegistry collaborator: a process-wide,
// read-after-startup map from (domain, name) to a `{{variable}}` template,
// grounded on the teacher's internal/playground/worker/worker.go
// renderTemplate substitution helper, generalized into a registry
// populated at startup from embedded prompt text assets per spec §4.7.
//
// Unlike the teacher's renderTemplate (which errors when a placeholder is
// left unbound), Get never errors: a missing (domain, name) pair logs a
// warning and returns an empty string, and a missing variable is simply
// rendered as an empty string, matching spec §4.7 exactly.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

func errorsIsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist)
}

//go:embed templates/*/*.tmpl
var defaultTemplates embed.FS

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Registry holds templates keyed by domain then name. It is built once at
// startup and read concurrently without locking thereafter.
type Registry struct {
	templates map[string]map[string]string
}

// NewRegistry loads the embedded default template set.
func NewRegistry() (*Registry, error) {
	return NewRegistryFromFS(defaultTemplates, "templates")
}

// NewRegistryFromFS loads templates from root/<domain>/<name>.tmpl within
// fsys, primarily for tests that supply a synthetic fs.FS.
func NewRegistryFromFS(fsys fs.FS, root string) (*Registry, error) {
	r := &Registry{templates: make(map[string]map[string]string)}
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		if errorsIsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read prompt template root: %w", err)
	}
	for _, domainEntry := range entries {
		if !domainEntry.IsDir() {
			continue
		}
		domainName := domainEntry.Name()
		files, err := fs.ReadDir(fsys, path.Join(root, domainName))
		if err != nil {
			return nil, fmt.Errorf("read prompt domain %q: %w", domainName, err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".tmpl") {
				continue
			}
			data, err := fs.ReadFile(fsys, path.Join(root, domainName, f.Name()))
			if err != nil {
				return nil, fmt.Errorf("read prompt template %q/%q: %w", domainName, f.Name(), err)
			}
			name := strings.TrimSuffix(f.Name(), ".tmpl")
			if r.templates[domainName] == nil {
				r.templates[domainName] = make(map[string]string)
			}
			r.templates[domainName][name] = string(data)
		}
	}
	return r, nil
}

// Get substitutes vars into the named template and returns the result.
// A missing (domain, name) pair returns "" and logs a warning; a variable
// referenced in the template but absent from vars renders as "".
func (r *Registry) Get(domainName, name string, vars map[string]any) string {
	tmpl, ok := r.templates[domainName][name]
	if !ok {
		log.Warn().Str("domain", domainName).Str("name", name).Msg("prompt_template_not_found")
		return ""
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return ""
	})
}

// Has reports whether a (domain, name) template is registered.
func (r *Registry) Has(domainName, name string) bool {
	_, ok := r.templates[domainName][name]
	return ok
}
