// Package dedupe remembers chat form submission ids for a short window so a
// double-clicked or resubmitted message is only sent once per session.
package dedupe
