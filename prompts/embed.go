// Package prompts embeds the text templates shipped with tide.
package prompts

import _ "embed"

// PolishPrompt is the default instruction used to rewrite chat input.
// The {text} placeholder is replaced with the text being polished.
//
//go:embed polish.md
var PolishPrompt string
