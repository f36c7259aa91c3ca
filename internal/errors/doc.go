// Package errors provides coded, user-facing errors for the ihi command.
//
// Library packages return plain Go errors. The CLI wraps the ones an
// operator has to act on (bad configuration, an unreachable store, a busy
// listen address) into a *CodedError carrying a stable code, a detail line
// and a hint:
//
//	err := errors.New("E102").
//	    WithDetail("store.driver must be one of memory, sqlite, s3").
//	    WithSuggestion("Set store.driver in ihi.yaml")
//
//	errors.PrintError(err)
//	// ERROR E102: Invalid configuration value
//	//
//	//   store.driver must be one of memory, sqlite, s3
//	//
//	//   Hint: Set store.driver in ihi.yaml
package errors
