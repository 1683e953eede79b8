package web

import "embed"

// EmailFS embeds the HTML templates of outgoing report e-mails.
//
//go:embed templates/email/*.html
var EmailFS embed.FS
