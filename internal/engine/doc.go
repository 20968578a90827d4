// Package engine implements the cryptographic group protocol behind Marlin:
// key package generation and validation, group formation, welcome wrapping
// and unwrapping, pending-commit merges and epoch-keyed message encryption.
//
// The session core drives the engine single-threaded and the engine persists
// through the storage contract only, so either storage backend works
// unchanged.
//
// # Key schedule
//
// Each group carries a random 32-byte secret. The message key for an epoch is
// HKDF-SHA256(secret, salt=epoch, info="marlin-epoch-v1"); merging a pending
// commit is what makes the current epoch's key usable. Welcomes travel inside
// sealed-box wrap envelopes addressed to the invitee's identity key, hiding
// both sender and content from the relay.
package engine
