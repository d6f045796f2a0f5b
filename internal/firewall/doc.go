// Package firewall is the narrow bridge between blockd and the kernel packet filter.
//
// # Overview
//
// blockd needs exactly four things from nftables: make sure its table and
// chain exist, list the drop rules it manages (optionally with handles), add
// a source-address drop rule, and delete a rule by handle. [Adapter] is that
// surface. The adapter keeps no state of its own; the block cache is the
// intended state and the chain contents are the actual state.
//
// # Backends
//
//   - [NFT]: shells out to the nft binary through a [CommandRunner] and parses
//     its text listing. Only lines of the exact expected shape are accepted.
//   - [Native]: talks netlink through google/nftables (linux only).
//   - [Memory]: in-process rule table used by tests and dry runs.
//
// # Rule shape
//
// Every rule blockd installs is
//
//	ip saddr <addr> drop
//
// in the configured family/table/chain (bridge filter forward by default).
package firewall
