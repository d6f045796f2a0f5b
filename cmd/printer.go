// Package cmd holds the entry points behind each blockd subcommand.
package cmd

import "grimm.is/blockd/internal/i18n"

// Printer formats user-facing CLI output for the current locale.
var Printer = i18n.NewCLIPrinter()
