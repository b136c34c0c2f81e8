// Package auth implements the requester side of the Blockstack
// decentralized-identity sign-in flow. It builds and dispatches
// authentication requests to an identity provider, detects pending sign-in
// responses on the return navigation, and resolves a signed authentication
// response into a committed local session: token validation,
// protocol-version-gated decryption of secrets with an ephemeral transit
// key, identity-address derivation from the issuer DID, and profile
// resolution.
//
// The package is host-agnostic: all ambient browser-like capabilities
// (query parameters, navigation, user agent) sit behind the Environment
// interface, and the cryptographic and storage collaborators
// (TokenVerifier, Decrypter, AddressDeriver, ProfileUnwrapper,
// SessionStore) are pluggable, with default implementations provided.
package auth
