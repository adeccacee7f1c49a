// Package typing implements debounced typing indicators for one
// conversation.
//
// The outgoing side broadcasts a typing-start on every keystroke and
// arms a debounce timer; if no further keystroke and no explicit stop
// arrives before the timer fires, a stop is broadcast automatically so
// an indicator can never stay stuck "on" after a crash or backgrounding.
//
// The consuming side keeps a per-user expiry alongside each entry and
// excludes anything past its expiry even when the explicit stop was
// lost. Display text follows the product rules: one name, two names, or
// "Several people are typing…" for three and up.
package typing
