package endpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind discriminates a Response.
type Kind int

const (
	KindAnswer Kind = iota
	KindRawString
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindAnswer:
		return "answer"
	case KindRawString:
		return "raw_string"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reason classifies an error Response.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonApplication: the endpoint reported the error itself.
	ReasonApplication
	// ReasonMalformed: invalid JSON or an unexpected shape.
	ReasonMalformed
	// ReasonUnavailable: transient failures exhausted every attempt.
	ReasonUnavailable
	// ReasonCanceled: the caller went away.
	ReasonCanceled
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonApplication:
		return "application"
	case ReasonMalformed:
		return "malformed"
	case ReasonUnavailable:
		return "unavailable"
	case ReasonCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

const (
	MsgUnexpectedFormat = "unexpected response format"
	MsgUnavailable      = "service unavailable, try again later"
)

// Response is the normalized result of a Query.
type Response struct {
	Kind       Kind
	Answer     string
	Citations  []string
	Hyperlinks []string

	Reason Reason
	Err    string
	// Attempts is how many HTTP attempts were made.
	Attempts int
}

func (r Response) OK() bool { return r.Kind != KindError }

func answerResponse(answer string, citations, hyperlinks []string) Response {
	if citations == nil {
		citations = []string{}
	}
	if hyperlinks == nil {
		hyperlinks = []string{}
	}
	return Response{Kind: KindAnswer, Answer: answer, Citations: citations, Hyperlinks: hyperlinks}
}

func rawResponse(s string) Response {
	return Response{Kind: KindRawString, Answer: s, Citations: []string{}, Hyperlinks: []string{}}
}

func ErrorResponse(reason Reason, msg string) Response {
	return Response{Kind: KindError, Reason: reason, Err: msg}
}

// Normalize decodes an endpoint body. answerField names the answer key.
func Normalize(body []byte, answerField string) Response {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return ErrorResponse(ReasonMalformed, "invalid JSON response from endpoint")
	}
	switch body[0] {
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return ErrorResponse(ReasonMalformed, "invalid JSON response from endpoint")
		}
		return rawResponse(s)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return ErrorResponse(ReasonMalformed, "invalid JSON response from endpoint")
		}
		if raw, ok := obj["error"]; ok {
			return ErrorResponse(ReasonApplication, errorText(raw))
		}
		raw, ok := obj[answerField]
		if !ok {
			return ErrorResponse(ReasonMalformed, MsgUnexpectedFormat)
		}
		var answer string
		if err := json.Unmarshal(raw, &answer); err != nil {
			return ErrorResponse(ReasonMalformed, MsgUnexpectedFormat)
		}
		return answerResponse(answer, stringList(obj["citation"]), stringList(obj["hyperlink"]))
	default:
		return ErrorResponse(ReasonMalformed, MsgUnexpectedFormat)
	}
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}

// stringList keeps positions: entries that are not strings become "" so
// citation/hyperlink indices stay aligned.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			return []string{single}
		}
		return []string{}
	}
	out := make([]string, len(items))
	for i, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err == nil {
			out[i] = s
		}
	}
	return out
}
