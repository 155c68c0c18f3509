// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

// Package auth implements the credential-lifecycle core for KeyGate.
//
// # Domain Types
//
// Domain types (Principal, Credential, Session, PasswordResetRequest) should
// be created using their respective constructors:
//   - NewPrincipal - creates a Principal with a validated email
//   - NewCredential - creates a Credential with an initial password hash
//   - NewSession - creates a Session bound to a token pair
//   - NewPasswordResetRequest - creates a reset request with a hashed token
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - CredentialStore - password hashing, verification, and rotation with
//     bounded reuse history
//   - TokenIssuer - access/refresh JWT minting and verification
//   - SessionRegistry - session visibility and revocation
//   - PasswordResetFlow - one-time reset tokens with expiry and single use
//   - Facade - Join, Login, Refresh, ChangePassword, and reset orchestration
//
// Services are created with New* constructors that validate dependencies.
// Multi-write sequences run inside a Transactor so that partial credential or
// session state is never observable.
package auth
