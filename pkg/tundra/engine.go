package tundra

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine is the central controller of the template compiler. It owns the tag
// grammar, rewrite rules, helper functions and the program cache, and turns
// template files or inline sources into rendered text.
// All methods are concurrent-safe. Independent engines share nothing.
type Engine struct {
	logger  *slog.Logger
	config  *Config
	grammar *Grammar
	loader  Loader
	cache   *Cache
	metrics *metrics
	helpers map[string]any
	rules   []Rule
	mu      sync.RWMutex
}

type engineOptions struct {
	store      ProgramStore
	loader     Loader
	registerer prometheus.Registerer
}

// Option customizes an Engine.
type Option func(*engineOptions)

// WithStore sets the backend of the program cache. The default is a MemoryStore.
func WithStore(store ProgramStore) Option {
	return func(o *engineOptions) { o.store = store }
}

// WithLoader replaces the filesystem loader built from Config.BaseDir.
func WithLoader(loader Loader) Option {
	return func(o *engineOptions) { o.loader = loader }
}

// WithRegisterer registers the engine's collectors with reg. Without it the
// engine records no metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registerer = reg }
}

// NewEngine creates an Engine. A nil logger discards logs and a nil config
// means DefaultConfig. Tag overrides from config are applied in order; an
// invalid one fails the construction.
func NewEngine(logger *slog.Logger, config *Config, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config == nil {
		config = DefaultConfig()
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.loader == nil {
		l, err := NewDirLoader(config.BaseDir, config.Extension, config.Encoding)
		if err != nil {
			return nil, err
		}
		o.loader = l
	}

	g := NewGrammar()
	for _, tag := range config.Tags {
		if err := g.Configure(tag.Kind, tag.Open, tag.Close); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		logger:  logger,
		config:  config,
		grammar: g,
		loader:  o.loader,
		metrics: newMetrics(o.registerer),
		helpers: defaultHelpers(),
	}
	e.cache = NewCache(o.store, e.bind)
	e.cache.metrics = e.metrics
	e.cache.SetActive(config.CacheEnabled)

	logger.Debug("Template engine initialized", "base_dir", config.BaseDir, "cache", config.CacheEnabled, "scoping", config.Scoping)
	return e, nil
}

// Compile resolves and generates the template stored under name, or returns
// the cached program when one exists. A missing template returns an error
// wrapping ErrNotFound.
func (e *Engine) Compile(ctx context.Context, name string) (*Program, error) {
	return e.program(ctx, fileKey(name), e.fileSource(name))
}

// CompileString compiles inline template source. Directives inside it still
// load parents and required files through the engine's loader.
func (e *Engine) CompileString(ctx context.Context, src string) (*Program, error) {
	return e.program(ctx, sourceKey(src), inlineSource(src))
}

// Render compiles the template stored under name if needed and executes it
// against data.
func (e *Engine) Render(ctx context.Context, name string, data any) (string, error) {
	return e.render(ctx, fileKey(name), e.fileSource(name), data)
}

// RenderString compiles and executes inline template source.
func (e *Engine) RenderString(ctx context.Context, src string, data any) (string, error) {
	return e.render(ctx, sourceKey(src), inlineSource(src), data)
}

// RenderTo renders the template stored under name into w. Nothing is written
// when compilation or execution fails.
func (e *Engine) RenderTo(ctx context.Context, w io.Writer, name string, data any) error {
	out, err := e.Render(ctx, name, data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// ConfigureTag redefines the delimiters of a configurable tag kind (print,
// print_plain, code, comment, raw). Programs already cached keep the syntax
// they were compiled with.
func (e *Engine) ConfigureTag(kind, open, close string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.grammar.Configure(kind, open, close); err != nil {
		e.logger.Warn("Rejected tag configuration", "kind", kind, "error", err)
		return err
	}
	e.logger.Debug("Tag configured", "kind", kind, "open", open, "close", close)
	return nil
}

// Tags returns the current delimiter definitions.
func (e *Engine) Tags() []TagDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.grammar.Definitions()
}

// Exists reports whether a template file with the given name can be loaded.
func (e *Engine) Exists(name string) bool {
	return e.loader.Exists(name)
}

// Templates lists the loadable templates when the loader supports listing.
func (e *Engine) Templates() ([]string, error) {
	lister, ok := e.loader.(Lister)
	if !ok {
		return nil, errors.New("loader cannot list templates")
	}
	return lister.List()
}

// Extend registers a rewrite rule applied to the raw content of every template
// loaded from now on, after the rules registered before it.
func (e *Engine) Extend(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
}

// Funcs adds helpers callable by name from expressions, replacing helpers of
// the same name.
func (e *Engine) Funcs(funcs map[string]any) {
	e.mu.Lock()
	next := make(map[string]any, len(e.helpers)+len(funcs))
	for name, fn := range e.helpers {
		next[name] = fn
	}
	for name, fn := range funcs {
		next[name] = fn
	}
	e.helpers = next
	e.mu.Unlock()
	e.cache.forgetBound()
}

// SetCacheActive switches the program cache on or off.
func (e *Engine) SetCacheActive(active bool) {
	e.cache.SetActive(active)
}

// CacheActive reports whether the program cache is on.
func (e *Engine) CacheActive() bool {
	return e.cache.IsActive()
}

// Cache returns the engine's program cache.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// GetConfig returns a copy of the configuration the engine was created with.
func (e *Engine) GetConfig() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c := *e.config
	c.Tags = append([]TagConfig(nil), e.config.Tags...)
	return c
}

// source yields the resolver name and raw content of a template.
type source func() (name, raw string, err error)

func (e *Engine) fileSource(name string) source {
	return func() (string, string, error) {
		raw, err := e.loader.Load(name)
		if err != nil {
			return "", "", err
		}
		return name, raw, nil
	}
}

func inlineSource(src string) source {
	return func() (string, string, error) { return "", src, nil }
}

func fileKey(name string) string {
	return "file:" + strings.TrimSpace(name)
}

func sourceKey(src string) string {
	sum := sha256.Sum256([]byte(src))
	return "src:" + hex.EncodeToString(sum[:])
}

func (e *Engine) program(ctx context.Context, key string, load source) (*Program, error) {
	if e.cache.IsActive() {
		p, err := e.cache.Program(ctx, key)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotCached) {
			return nil, err
		}
	}
	p, err := e.compile(key, load)
	if err != nil {
		return nil, err
	}
	return e.cache.Set(ctx, key, p)
}

func (e *Engine) render(ctx context.Context, key string, load source, data any) (string, error) {
	start := time.Now()
	x, err := e.executable(ctx, key, load)
	if err != nil {
		e.metrics.rendered(start, err)
		return "", err
	}
	out, err := x.Execute(data)
	e.metrics.rendered(start, err)
	if err != nil {
		e.logger.Debug("Template execution failed", "key", key, "error", err)
		return "", err
	}
	return out, nil
}

func (e *Engine) executable(ctx context.Context, key string, load source) (*Executable, error) {
	if e.cache.IsActive() {
		x, err := e.cache.Executable(ctx, key)
		if err == nil {
			return x, nil
		}
		if !errors.Is(err, ErrNotCached) {
			return nil, err
		}
	}
	p, err := e.compile(key, load)
	if err != nil {
		return nil, err
	}
	if !e.cache.IsActive() {
		return e.bind(p)
	}
	stored, err := e.cache.Set(ctx, key, p)
	if err != nil {
		return nil, err
	}
	return e.cache.memoize(key, stored)
}

// compile runs the pipeline: resolve, tokenize, generate.
func (e *Engine) compile(key string, load source) (*Program, error) {
	name, raw, err := load()
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	g := e.grammar.Clone()
	rules := append([]Rule(nil), e.rules...)
	scoping := e.config.Scoping
	e.mu.RUnlock()

	r := &resolver{g: g, loader: e.loader, rules: rules, logger: e.logger, metrics: e.metrics}
	content := r.resolve(name, raw)

	p := Generate(key, g, Tokenize(g, content), scoping)
	p.Problems = r.problems

	source := "file"
	if name == "" {
		source = "inline"
	}
	e.metrics.compiled(source)
	e.logger.Debug("Template compiled", "key", key, "nodes", len(p.Nodes), "problems", len(p.Problems))
	return p, nil
}

func (e *Engine) bind(p *Program) (*Executable, error) {
	e.mu.RLock()
	helpers := e.helpers
	e.mu.RUnlock()
	return Bind(p, helpers)
}
