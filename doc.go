// Package fmailer is a client for the Fmailer email delivery service.
//
// A Client authenticates every request with the credentials given to New and
// exposes two kinds of email: simple sends, where the caller supplies the
// subject and finished body, and templated sends, which the service renders
// from a stored template with optional parameters and language.
//
//	client, err := fmailer.New("acme", "secret")
//	if err != nil {
//		// credentials were empty
//	}
//	ok, err := client.SendSimple(ctx, fmailer.SimpleEmail{
//		Recipient: "user@example.com",
//		Sender:    "noreply@acme.example",
//		Subject:   "Welcome",
//		Body:      "<p>Hello.</p>",
//	})
//
// Every send also has a non-blocking variant. SendSimpleAsync and
// SendTemplateAsync queue the request on a bounded worker pool that starts
// lazily with the first submission, and return a *Delivery handle that
// settles exactly once with the outcome. An optional Callback observes the
// same outcome on the worker goroutine. Shutdown closes that pool; a client
// that is garbage collected without Shutdown releases it without waiting.
//
// Failures split into kinds. Requests with empty required fields fail with
// *ValidationError before anything is sent. Requests that reach the wire and
// fail, whether rejected by the service or broken below HTTP, surface as
// *SendError. With WithFailureMode(FailureModeSilent) those send failures are
// swallowed and reported only as a false result; validation failures never
// are. ErrShutdown and ErrWaitTimeout cover the asynchronous lifecycle.
//
// All methods are safe for concurrent use.
package fmailer
