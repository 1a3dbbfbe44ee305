package agi

import (
	"fmt"
	"strconv"
	"strings"
)

// Reply is the parsed form of one reply line from the switch, normally
// "200 result=N [extra]". Transport failures (write error, read timeout,
// commanding a dead channel) are surfaced as a synthetic Reply with Err set
// rather than as a separate error return, so callers always receive a value
// they can inspect uniformly.
type Reply struct {
	// Raw is the reply line exactly as received, or "" for synthetic replies.
	Raw string
	// Code is the numeric status prefix, 0 when the line was unparsable.
	Code int
	// Result is the token following "result=", "" when absent.
	Result string
	// Extra is whatever trailed the result token, such as "(timeout)".
	Extra string
	// Err is non-nil only for synthetic replies produced by the channel.
	Err error
}

// OK reports whether the reply is a genuine success line from the switch.
func (r Reply) OK() bool {
	return r.Err == nil && r.Code == 200
}

// ResultInt returns the result token as an integer.
func (r Reply) ResultInt() (int, bool) {
	n, err := strconv.Atoi(r.Result)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Value extracts a parenthesized payload from Extra, e.g. the variable value
// returned by GET VARIABLE. Returns "" when none is present.
func (r Reply) Value() string {
	start := strings.Index(r.Extra, "(")
	end := strings.LastIndex(r.Extra, ")")
	if start < 0 || end <= start {
		return ""
	}
	return r.Extra[start+1 : end]
}

// indicatesHangup reports whether the reply means the remote party is gone:
// a transport failure, a -1 result, or a hangup token anywhere in the line
// (the switch injects a bare "HANGUP" notification line on teardown).
func (r Reply) indicatesHangup() bool {
	if r.Err != nil {
		return true
	}
	if r.Result == "-1" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Raw), "hangup")
}

func (r Reply) String() string {
	if r.Err != nil {
		return fmt.Sprintf("reply(err: %v)", r.Err)
	}
	return r.Raw
}

// parseReply parses a single reply line. Unparsable lines yield a Reply with
// Code 0 and the raw text preserved; the caller decides how hard to fail.
func parseReply(line string) Reply {
	rep := Reply{Raw: line}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return rep
	}
	if code, err := strconv.Atoi(fields[0]); err == nil {
		rep.Code = code
	}
	for i, f := range fields[1:] {
		if after, ok := strings.CutPrefix(f, "result="); ok {
			rep.Result = after
			rep.Extra = strings.Join(fields[i+2:], " ")
			break
		}
	}
	return rep
}

func syntheticReply(err error) Reply {
	return Reply{Err: err}
}
