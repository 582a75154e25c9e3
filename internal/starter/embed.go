// Package starter embeds the files `patterngraph init` writes into a new
// project: a patterngraph.yml and an example design. The embedded
// filesystem is rooted at "files/".
package starter

import "embed"

// Root is the directory inside FS that maps onto the project root.
const Root = "files"

// FS contains the embedded starter files. Walk from Root to iterate over all
// files.
//
//go:embed all:files
var FS embed.FS
