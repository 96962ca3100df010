package register

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// CheckStatus is the outcome of an availability check. Its value is the
// backend's HTTP status; statuses outside the named set pass through as is.
type CheckStatus int

const (
	CheckEmpty   CheckStatus = 0
	CheckOk      CheckStatus = 204
	CheckInvalid CheckStatus = 400
	CheckTaken   CheckStatus = 409
)

func (s CheckStatus) String() string {
	switch s {
	case CheckEmpty:
		return "empty"
	case CheckOk:
		return "ok"
	case CheckInvalid:
		return "invalid"
	case CheckTaken:
		return "taken"
	default:
		return "status_" + strconv.Itoa(int(s))
	}
}

// CheckKind selects what a CheckRequest checks.
type CheckKind string

const (
	CheckKindEmail    CheckKind = "Email"
	CheckKindUsername CheckKind = "Username"
)

// CheckRequest asks whether an email or username is available.
// On the wire it is a tagged union:
//
//	{"type":"Username","content":{"username":"alice"}}
//	{"type":"Email","content":{"email":"a@example.com"}}
type CheckRequest struct {
	Kind  CheckKind
	Value string
}

// CheckUsername builds a username availability check.
func CheckUsername(username string) CheckRequest {
	return CheckRequest{Kind: CheckKindUsername, Value: username}
}

// CheckEmail builds an email availability check.
func CheckEmail(email string) CheckRequest {
	return CheckRequest{Kind: CheckKindEmail, Value: email}
}

type checkEnvelope struct {
	Type    CheckKind       `json:"type"`
	Content json.RawMessage `json:"content"`
}

type emailContent struct {
	Email string `json:"email"`
}

type usernameContent struct {
	Username string `json:"username"`
}

// MarshalJSON implements json.Marshaler.
func (r CheckRequest) MarshalJSON() ([]byte, error) {
	var content any
	switch r.Kind {
	case CheckKindEmail:
		content = emailContent{Email: r.Value}
	case CheckKindUsername:
		content = usernameContent{Username: r.Value}
	default:
		return nil, fmt.Errorf("register: unknown check kind %q", r.Kind)
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(checkEnvelope{Type: r.Kind, Content: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *CheckRequest) UnmarshalJSON(b []byte) error {
	var env checkEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	switch env.Type {
	case CheckKindEmail:
		var c emailContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return err
		}
		*r = CheckRequest{Kind: env.Type, Value: c.Email}
	case CheckKindUsername:
		var c usernameContent
		if err := json.Unmarshal(env.Content, &c); err != nil {
			return err
		}
		*r = CheckRequest{Kind: env.Type, Value: c.Username}
	default:
		return fmt.Errorf("register: unknown check kind %q", env.Type)
	}
	return nil
}

// Checker posts availability checks.
type Checker interface {
	CheckRegister(ctx context.Context, body any) (int, error)
}

// CheckParam asks the backend whether req is available.
//
// Any HTTP response, success or not, yields its status. When no response
// was received at all the failure is logged and CheckInvalid is returned.
func CheckParam(ctx context.Context, c Checker, req CheckRequest, log *slog.Logger) CheckStatus {
	if log == nil {
		log = slog.Default()
	}

	status, err := c.CheckRegister(ctx, req)
	if status != 0 {
		return CheckStatus(status)
	}
	if err == nil {
		err = errors.New("no response status")
	}
	log.Warn("register.check.fail", "kind", string(req.Kind), "err", err)
	return CheckInvalid
}
