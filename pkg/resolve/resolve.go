// Package resolve locates function addresses among the exports of already
// loaded modules, matching names by their case-folded FNV-1a hash instead of
// by string.
package resolve

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/carved4/go-hashresolve/pkg/export"
	"github.com/carved4/go-hashresolve/pkg/hash"
	"github.com/carved4/go-hashresolve/pkg/loader"
)

var (
	// ErrNotFound reports that nothing loaded matches the requested hash
	// or ordinal. It is an ordinary outcome, not a fault.
	ErrNotFound = errors.New("not found")

	// ErrForwardDepth reports a forwarder chain that never reached code
	// within the configured hop budget, which includes chains that loop.
	ErrForwardDepth = errors.New("forwarder chain too deep")
)

const defaultForwardDepth = 8

// Function is a successfully resolved export. Addr is an entry address in
// this process and stays valid only while the owning module remains loaded.
// Whether and how it can be called is the caller's contract.
type Function struct {
	Addr    uintptr
	Module  string // base name of the module that provides the code
	Name    string // export name there, empty for ordinal-only exports
	Ordinal uint32
}

// Resolver scans the modules of a loader view. Every call re-enumerates and
// re-parses; no result is cached across calls, so a module unloaded between
// calls can never serve a stale address.
type Resolver struct {
	view     loader.View
	log      *logrus.Logger
	maxDepth int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithView substitutes the loader view scanned by the Resolver. The default
// is the current process's native loader.
func WithView(v loader.View) Option {
	return func(r *Resolver) { r.view = v }
}

// WithLogger directs scan diagnostics to log. The default logger discards
// everything.
func WithLogger(log *logrus.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithForwardDepth bounds how many forwarder hops a resolution may follow.
func WithForwardDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

func New(opts ...Option) *Resolver {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	r := &Resolver{
		view:     loader.Native(),
		log:      silent,
		maxDepth: defaultForwardDepth,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveByHash scans every loaded module for a named export whose
// case-folded FNV-1a digest equals h. The first match wins; if it forwards
// to another module, the chain is followed to code. Modules with malformed
// export data are skipped, and their parse failures ride along as context
// on an ErrNotFound result.
func (r *Resolver) ResolveByHash(h uint32) (Function, error) {
	s, err := r.newScan()
	if err != nil {
		return Function{}, err
	}
	for _, m := range s.mods {
		entries, err := s.parse(m)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.Name == "" {
				// Ordinal-only exports have nothing to hash;
				// ResolveOrdinal reaches them.
				continue
			}
			if hash.Get(e.Name) == h {
				r.log.WithFields(logrus.Fields{
					"module": m.Name,
					"export": e.Name,
				}).Debug("hash matched")
				return s.finalize(m, e)
			}
		}
	}
	return Function{}, s.notFound("function hash 0x%08X", h)
}

// ModuleByHash finds the loaded module whose base name digest equals h.
func (r *Resolver) ModuleByHash(h uint32) (loader.Module, error) {
	s, err := r.newScan()
	if err != nil {
		return loader.Module{}, err
	}
	m, ok := s.moduleByHash(h)
	if !ok {
		return loader.Module{}, s.notFound("module hash 0x%08X", h)
	}
	return m, nil
}

// ResolveInModule looks for functionHash only among the exports of the
// module named by moduleHash. Unlike the all-module scan, malformed export
// data in that one module is the failure itself.
func (r *Resolver) ResolveInModule(moduleHash, functionHash uint32) (Function, error) {
	s, err := r.newScan()
	if err != nil {
		return Function{}, err
	}
	m, ok := s.moduleByHash(moduleHash)
	if !ok {
		return Function{}, s.notFound("module hash 0x%08X", moduleHash)
	}
	entries, err := s.parse(m)
	if err != nil {
		return Function{}, fmt.Errorf("resolve: %w", err)
	}
	for _, e := range entries {
		if e.Name != "" && hash.Get(e.Name) == functionHash {
			return s.finalize(m, e)
		}
	}
	return Function{}, s.notFound("function hash 0x%08X in %s", functionHash, m.Name)
}

// ResolveOrdinal resolves an export of the module named by moduleHash by
// its biased ordinal. This is the only road to ordinal-only exports.
func (r *Resolver) ResolveOrdinal(moduleHash uint32, ordinal uint32) (Function, error) {
	s, err := r.newScan()
	if err != nil {
		return Function{}, err
	}
	m, ok := s.moduleByHash(moduleHash)
	if !ok {
		return Function{}, s.notFound("module hash 0x%08X", moduleHash)
	}
	entries, err := s.parse(m)
	if err != nil {
		return Function{}, fmt.Errorf("resolve: %w", err)
	}
	for _, e := range entries {
		if e.Ordinal == ordinal {
			return s.finalize(m, e)
		}
	}
	return Function{}, s.notFound("ordinal %d in %s", ordinal, m.Name)
}

// ModuleExports pairs a module with its parsed export entries.
type ModuleExports struct {
	Module  loader.Module
	Entries []export.Entry
}

// ListExports parses every loaded module's export table. Modules with
// malformed export data are omitted from the result and their failures come
// back aggregated next to the partial listing.
func (r *Resolver) ListExports() ([]ModuleExports, error) {
	s, err := r.newScan()
	if err != nil {
		return nil, err
	}
	var out []ModuleExports
	var merr *multierror.Error
	for _, m := range s.mods {
		entries, err := s.parse(m)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("module %s: %w", m.Name, err))
			continue
		}
		out = append(out, ModuleExports{Module: m, Entries: entries})
	}
	return out, merr.ErrorOrNil()
}

// scan is the per-call state: one loader snapshot plus a parse-once memo
// keyed by module base.
type scan struct {
	r        *Resolver
	mods     []loader.Module
	parsed   map[uintptr][]export.Entry
	parseErr map[uintptr]error
}

func (r *Resolver) newScan() (*scan, error) {
	mods, err := r.view.Modules()
	if err != nil {
		return nil, fmt.Errorf("resolve: enumerate modules: %w", err)
	}
	r.log.WithField("modules", len(mods)).Debug("captured loader snapshot")
	return &scan{
		r:        r,
		mods:     mods,
		parsed:   make(map[uintptr][]export.Entry),
		parseErr: make(map[uintptr]error),
	}, nil
}

func (s *scan) parse(m loader.Module) ([]export.Entry, error) {
	if entries, ok := s.parsed[m.Base]; ok {
		return entries, nil
	}
	if err, ok := s.parseErr[m.Base]; ok {
		return nil, err
	}
	entries, err := func() ([]export.Entry, error) {
		img, err := s.r.view.Image(m)
		if err != nil {
			return nil, err
		}
		return export.Parse(img)
	}()
	if err != nil {
		s.parseErr[m.Base] = err
		s.r.log.WithFields(logrus.Fields{
			"module": m.Name,
			"base":   fmt.Sprintf("0x%x", m.Base),
		}).WithError(err).Warn("skipping module with unreadable exports")
		return nil, err
	}
	s.parsed[m.Base] = entries
	return entries, nil
}

func (s *scan) moduleByHash(h uint32) (loader.Module, bool) {
	for _, m := range s.mods {
		if hash.Get(m.Name) == h {
			return m, true
		}
	}
	return loader.Module{}, false
}

// finalize turns a matched entry into an address, following forwarders
// until code is reached or the hop budget runs out.
func (s *scan) finalize(m loader.Module, e export.Entry) (Function, error) {
	for depth := 0; e.Forwarded(); depth++ {
		if depth == s.r.maxDepth {
			return Function{}, fmt.Errorf("resolve: %w (%d hops) at %s.%s", ErrForwardDepth, depth, m.Name, e.Name)
		}
		s.r.log.WithFields(logrus.Fields{
			"module": m.Name,
			"export": e.Name,
			"target": e.Forwarder,
		}).Debug("following forwarder")
		next, nextEntry, err := s.forwardTarget(e.Forwarder)
		if err != nil {
			return Function{}, err
		}
		m, e = next, nextEntry
	}
	return Function{
		Addr:    m.Base + uintptr(e.RVA),
		Module:  m.Name,
		Name:    e.Name,
		Ordinal: e.Ordinal,
	}, nil
}

// forwardTarget decodes "TARGETDLL.Func" or "TARGETDLL.#12" and finds that
// export among the same loader snapshot. Nothing is ever loaded to satisfy
// a forwarder; a target module that is not already mapped is a miss.
func (s *scan) forwardTarget(ref string) (loader.Module, export.Entry, error) {
	dot := strings.IndexByte(ref, '.')
	if dot <= 0 || dot == len(ref)-1 {
		return loader.Module{}, export.Entry{}, fmt.Errorf("resolve: malformed forwarder %q: %w", ref, ErrNotFound)
	}
	// Forwarder module names carry no extension; the split on the first
	// dot guarantees that.
	modName, fnName := ref[:dot]+".dll", ref[dot+1:]
	m, ok := s.moduleByHash(hash.Get(modName))
	if !ok {
		return loader.Module{}, export.Entry{}, fmt.Errorf("resolve: forwarder target module %s is not loaded: %w", modName, ErrNotFound)
	}
	entries, err := s.parse(m)
	if err != nil {
		return loader.Module{}, export.Entry{}, fmt.Errorf("resolve: forwarder target %s: %w", ref, err)
	}
	if ordText, isOrd := strings.CutPrefix(fnName, "#"); isOrd {
		ord, perr := strconv.ParseUint(ordText, 10, 32)
		if perr != nil {
			return loader.Module{}, export.Entry{}, fmt.Errorf("resolve: malformed forwarder ordinal %q: %w", ref, ErrNotFound)
		}
		for _, e := range entries {
			if e.Ordinal == uint32(ord) {
				return m, e, nil
			}
		}
	} else {
		for _, e := range entries {
			if e.Name == fnName {
				return m, e, nil
			}
		}
	}
	return loader.Module{}, export.Entry{}, fmt.Errorf("resolve: forwarder target %s has no such export: %w", ref, ErrNotFound)
}

// notFound labels a miss and attaches the parse failures of any skipped
// modules so a miss caused by corruption is distinguishable after the fact.
func (s *scan) notFound(format string, args ...any) error {
	err := fmt.Errorf("resolve: %s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	for _, m := range s.mods {
		if perr, ok := s.parseErr[m.Base]; ok {
			err = multierror.Append(err, fmt.Errorf("skipped %s: %w", m.Name, perr))
		}
	}
	return err
}
