// Package mailbox implements connected-account and email management.
//
// The service layer contains the business logic for registering email
// accounts, listing and reading messages, and applying user actions
// (read/important/archive/delete). It depends on repository interfaces
// defined in this package and should never import from api/.
//
// Repository implementations live in repository/postgres/.
package mailbox
