// Package gameplay registers the server's built-in message handlers on a
// dispatch chain: single sign-on login, keepalive, credit balance and motto
// updates.
//
// Every handler here runs at dispatch.DefaultAction so plugins can observe
// (Watcher), pre-empt (HighPriority, LowPriority) or cancel them. A
// HighPriority guard cancels messages that need a logged-in player when the
// session has none.
package gameplay
