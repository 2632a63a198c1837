// Package notifier delivers alarm messages: to the log, or by e-mail through
// an SMTP relay.
package notifier
