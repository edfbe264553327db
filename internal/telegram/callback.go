package telegram

import (
	"strconv"
	"strings"

	"github.com/avoronov/journal-bot/internal/domain"
)

// Callback data formats. The session id travels inside the payload so a
// delayed click can be matched against (and rejected by) the session it was
// issued for.
//
//	ans:<session>:<qid>:<value>
//	skip:<session>:<qid>
//	skipall:<session>
const (
	cbAnswer  = "ans"
	cbSkip    = "skip"
	cbSkipAll = "skipall"
)

// parseSessionCallback maps raw callback data onto a typed session action.
// Unknown or malformed data yields ok=false and is ignored by the router.
func parseSessionCallback(data string) (sessionID string, act domain.Action, ok bool) {
	parts := strings.Split(data, ":")
	switch parts[0] {
	case cbAnswer:
		if len(parts) != 4 {
			return "", domain.Action{}, false
		}
		qid, err := strconv.Atoi(parts[2])
		if err != nil {
			return "", domain.Action{}, false
		}
		return parts[1], domain.Action{Kind: domain.ActionAnswer, QuestionID: qid, Value: parts[3]}, true
	case cbSkip:
		if len(parts) != 3 {
			return "", domain.Action{}, false
		}
		qid, err := strconv.Atoi(parts[2])
		if err != nil {
			return "", domain.Action{}, false
		}
		return parts[1], domain.Action{Kind: domain.ActionSkip, QuestionID: qid}, true
	case cbSkipAll:
		if len(parts) != 2 {
			return "", domain.Action{}, false
		}
		return parts[1], domain.Action{Kind: domain.ActionSkipAll}, true
	default:
		return "", domain.Action{}, false
	}
}

func answerCallbackData(sessionID string, questionID int, value string) string {
	return cbAnswer + ":" + sessionID + ":" + strconv.Itoa(questionID) + ":" + value
}

func skipCallbackData(sessionID string, questionID int) string {
	return cbSkip + ":" + sessionID + ":" + strconv.Itoa(questionID)
}

func skipAllCallbackData(sessionID string) string {
	return cbSkipAll + ":" + sessionID
}
