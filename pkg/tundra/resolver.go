package tundra

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"
)

// Rule is a custom rewrite applied to the raw content of every loaded template
// before any directive is resolved.
type Rule func(string) string

// resolver merges extends, spread and require directives into a single content
// string. One resolver serves one compile; it is not reused.
type resolver struct {
	g       *Grammar
	loader  Loader
	rules   []Rule
	logger  *slog.Logger
	metrics *metrics

	problems []error
}

// resolve runs every resolution step over content. name is the template
// identity used in reports, empty for inline sources.
func (r *resolver) resolve(name, content string) string {
	content = r.applyRules(content)

	visiting := map[string]bool{}
	if name != "" {
		visiting[name] = true
	}
	content = r.extends(name, content, visiting)
	content = r.finishBlocks(name, content)
	content = r.spreads(name, content)
	return r.requires(name, content)
}

func (r *resolver) applyRules(content string) string {
	for _, rule := range r.rules {
		content = rule(content)
	}
	return content
}

// extends merges content into its parent chain. Block markers are kept around
// the chosen bodies so that a grandchild can still override them.
func (r *resolver) extends(name, content string, visiting map[string]bool) string {
	groups, ok := firstDirective(r.g.reExtends, content)
	if !ok {
		return content
	}
	parentName := strings.Trim(strings.TrimSpace(groups[0]), `"'`)

	if visiting[parentName] {
		r.report(ErrInheritanceCycle, parentName, name)
		return r.dropExtends(content)
	}
	raw, err := r.loader.Load(parentName)
	if err != nil {
		r.logger.Debug("Failed to load parent template", "template", name, "parent", parentName, "error", err)
		r.report(ErrNotFound, parentName, name)
		return r.dropExtends(content)
	}

	visiting[parentName] = true
	parent := r.extends(parentName, r.applyRules(raw), visiting)
	delete(visiting, parentName)

	child := replaceDirective(r.g.reParent, content, func(groups []string) string {
		blockName := strings.TrimSpace(groups[0])
		if block, found := findDirective(r.g.reBlock, parent, blockName); found {
			return block[1]
		}
		r.report(ErrMissingBlock, blockName, name)
		return ""
	})

	return replaceDirective(r.g.reBlock, parent, func(groups []string) string {
		blockName := strings.TrimSpace(groups[0])
		body := groups[1]
		if override, found := findDirective(r.g.reBlock, child, blockName); found {
			body = override[1]
		}
		return "{[ block " + blockName + " ]}" + body + "{[ endblock ]}"
	})
}

func (r *resolver) dropExtends(content string) string {
	return replaceDirective(r.g.reExtends, content, func([]string) string { return "" })
}

// finishBlocks unwraps the block regions left after inheritance and reports
// parent tags that had nothing to refer to.
func (r *resolver) finishBlocks(name, content string) string {
	content = replaceDirective(r.g.reBlock, content, func(groups []string) string {
		return groups[1]
	})
	return replaceDirective(r.g.reParent, content, func(groups []string) string {
		r.report(ErrMissingBlock, strings.TrimSpace(groups[0]), name)
		return ""
	})
}

// spreads substitutes @spread references, then strips every spread definition.
func (r *resolver) spreads(name, content string) string {
	src := content
	content = replaceDirective(r.g.reSpreadRef, src, func(groups []string) string {
		spreadName := strings.TrimSpace(groups[0])
		if block, found := findDirective(r.g.reSpreadBlock, src, spreadName); found {
			return strings.TrimSpace(block[1])
		}
		r.report(ErrMissingSpread, spreadName, name)
		return ""
	})
	return replaceDirective(r.g.reSpreadBlock, content, func([]string) string { return "" })
}

// requires inlines the verbatim content of every @require(path).
func (r *resolver) requires(name, content string) string {
	return replaceDirective(r.g.reRequire, content, func(groups []string) string {
		file := strings.Trim(strings.TrimSpace(groups[0]), `"'`)
		text, err := r.loader.Load(file)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				r.logger.Error("Failed to read required file", "template", name, "file", file, "error", err)
			}
			r.report(ErrNotFound, file, name)
			return ""
		}
		return text
	})
}

func (r *resolver) report(kind error, subject, template string) {
	problem := &ResolveError{Kind: kind, Name: subject, Template: template}
	r.problems = append(r.problems, problem)
	r.logger.Warn("Template resolution problem", "template", template, "error", problem)
	r.metrics.problem(kind)
}

// firstDirective returns the submatches of the first non-escaped match of re.
func firstDirective(re *regexp.Regexp, s string) ([]string, bool) {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			continue
		}
		return m[2:], true
	}
	return nil, false
}
