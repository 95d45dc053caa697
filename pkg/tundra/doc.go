/*
Package tundra provides a template compiler for text files with embedded
expressions, control blocks, template inheritance and reusable fragments.

A template is compiled in stages. Inheritance directives (@extends, block
overrides, @spread fragments and @require includes) are resolved into a single
content string, the content is split into literal text and tags, and the tags
become an intermediate Program. Programs are cached by template identity and
bound to a set of helper functions before being executed against a data
context. Embedded expressions use the expr language (github.com/expr-lang/expr).

	{# comment #}
	{{ user.name }}            escaped output
	{! html !}                 raw output
	{% for item in items: %}   control block, closed by {% end %}
	{% let total = 0 %}        inline statement
	~{{ literal }}             escaped tag, rendered as {{ literal }}

The delimiters of the comment, print, raw-print, code and escape tags can be
reconfigured per Engine. Compiled programs can be kept in memory, in SQLite
(package store/sqlite) or in Redis (package store/redis).
*/
package tundra
