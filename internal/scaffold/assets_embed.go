package scaffold

import "embed"

// templatesFS holds the .fuel/ starter files compiled into the binary.
// They are written to the project by "fuel init".
//
//go:embed templates
var templatesFS embed.FS
