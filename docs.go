// stacks.js (Go) provides the client-side half of the Blockstack
// decentralized-identity sign-in protocol: dispatching an authentication
// request to an identity provider, and validating, decrypting, and committing
// the signed authentication response it returns.
//
// See the auth package.
package stacks
