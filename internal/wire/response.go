package wire

import "fmt"

// The mining client expects legacy tag-delimited responses rather than
// JSON. These helpers build the handful of shapes it understands.

// ErrorResponse formats an error message the way the client expects:
// the message appears in both the RESPONSE and ERROR tags.
func ErrorResponse(msg string) string {
	return fmt.Sprintf("<RESPONSE>%s</RESPONSE><ERROR>%s</ERROR><EOF>", msg, msg)
}

// WorkResponse formats the reply to a work request. The client scrapes the
// pool address, hash target, its miner id and the granted work id out of
// the tags.
func WorkResponse(poolAddress, hashTarget, minerID, workID string) string {
	return fmt.Sprintf("<RESPONSE> <ADDRESS>%s</ADDRESS><HASHTARGET>%s</HASHTARGET><MINERGUID>%s</MINERGUID><WORKID>%s</WORKID></RESPONSE>",
		poolAddress, hashTarget, minerID, workID)
}

// SolutionResponse formats the acknowledgement for a submitted solution.
// Acceptance is not decided here; validation happens asynchronously.
func SolutionResponse(workID string) string {
	return fmt.Sprintf("<RESPONSE><STATUS>ok</STATUS><WORKID>%s</WORKID></RESPONSE><END></HTML>", workID)
}
