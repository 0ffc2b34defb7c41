// Package ethauth authenticates users by Ethereum signature. Every local
// account stores a one-time nonce; a wallet signs the message
//
//	I am signing my one-time nonce: <nonce>
//
// with personal_sign and the signature is used as the login password.
// The address recovered from the signature must match the account and the
// nonce is rotated in the same transaction that authorizes the login, so a
// captured signature cannot be replayed.
//
// Flows:
//   - LoginHandler resolves an identifier (address or email), checks the
//     confirmation and block gates, verifies the signature and rotates the
//     nonce before a JWT is issued. Third-party providers are delegated to a
//     ProviderConnector, see the grant package.
//   - RegisterUserHandler creates local accounts through RegistrationGuard,
//     which enforces address, username and email uniqueness under the
//     current Policy.
//   - InitializePasswordResetHandler and FinalizePasswordResetHandler run
//     the emailed one-time code flow. Only the digest of the code is stored.
//   - EmailConfirmationHandler and SendEmailConfirmationHandler confirm
//     accounts through an emailed token.
//
// Errors returned by the flows carry a Kind and a stable client identifier.
// The HTTP layer maps them once, in NewErrorResponse; downstream failures
// never leak their cause to clients.
//
// Policy is read through a PolicyStore and snapshotted once per request.
package ethauth
