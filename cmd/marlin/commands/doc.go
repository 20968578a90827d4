// Package commands implements the marlin CLI subcommands.
package commands
