// Command relayd runs a single-node in-memory relay for development and
// testing. It stores published envelopes until restart; durability is the
// business of real relay deployments, not this tool.
package main
