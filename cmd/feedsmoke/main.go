// Command feedsmoke is a CI-friendly smoke test for the session event feed
// served by "nitroshare serve".
//
// It validates:
//   - handshake + subprotocol selection
//   - the current state pushed on join
//   - hello/ack
//   - state.fetch -> session.changed
//
// With --watch it keeps printing session changes, which is handy while
// logging in and out from another terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"

	"nitroshare/cmd/internal/ids"
	"nitroshare/cmd/internal/realtime"
)

const maxReadBytes = 1 << 20

type smokeClient struct {
	conn   *websocket.Conn
	connID string

	inbox chan realtime.Envelope
	errCh chan error
}

func main() {
	fs := pflag.NewFlagSet("feedsmoke", pflag.ExitOnError)
	var (
		wsURL   = fs.String("url", "ws://127.0.0.1:5180/events", "feed WebSocket URL")
		origin  = fs.String("origin", "http://localhost", "Origin header to send (browser-like handshake)")
		expect  = fs.String("expect-logged-in", "", "fail unless logged_in matches (true|false)")
		timeout = fs.Duration("timeout", 7*time.Second, "per-step timeout")
		watch   = fs.Duration("watch", 0, "keep printing session changes for this long")
		verbose = fs.BoolP("verbose", "v", false, "verbose output")
	)
	_ = fs.Parse(os.Args[1:])

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid --url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid --origin: %v", err)
	}

	root := context.Background()

	c := mustConnect(root, *wsURL, *origin, *timeout)
	defer closeWS(c.conn)

	initial := decodeSession(c.mustReadUntilType(root, realtime.TypeSessionChanged, *timeout, nil))
	if *verbose {
		fmt.Printf("joined: initial logged_in=%t\n", initial.LoggedIn)
	}

	mustHello(root, c, *timeout)

	// A change may race the fetch; the last session.changed is the answer.
	fetched := mustFetch(root, c, *timeout)
	if *expect != "" {
		want := *expect == "true"
		if fetched.LoggedIn != want {
			fatalf("logged_in mismatch: got=%t want=%t", fetched.LoggedIn, want)
		}
	}

	fmt.Printf("OK: conn_id=%s logged_in=%t username=%q\n", c.connID, fetched.LoggedIn, fetched.Username)

	if *watch > 0 {
		watchChanges(root, c, *watch)
	}
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{realtime.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != realtime.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, realtime.Subprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan realtime.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func mustHello(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	mustWriteWithTimeout(parent, c.conn, outbound(realtime.TypeHello), stepTimeout)

	skip := map[string]struct{}{realtime.TypeSessionChanged: {}}
	ack := c.mustReadUntilType(parent, realtime.TypeHelloAck, stepTimeout, skip)

	var p realtime.HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello.ack payload: %v", err)
	}
	if strings.TrimSpace(p.ConnID) == "" {
		fatalf("hello.ack missing conn_id")
	}
	c.connID = p.ConnID
}

func mustFetch(parent context.Context, c *smokeClient, stepTimeout time.Duration) realtime.SessionPayload {
	mustWriteWithTimeout(parent, c.conn, outbound(realtime.TypeStateFetch), stepTimeout)
	return decodeSession(c.mustReadUntilType(parent, realtime.TypeSessionChanged, stepTimeout, nil))
}

func watchChanges(parent context.Context, c *smokeClient, d time.Duration) {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			fatalf("connection closed while watching: %v", err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while watching")
			}
			if env.Type != realtime.TypeSessionChanged {
				continue
			}
			p := decodeSession(env)
			fmt.Printf("%s session.changed logged_in=%t username=%q\n", env.TS.Format(time.RFC3339), p.LoggedIn, p.Username)
		}
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
			if mt != websocket.MessageText {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env realtime.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if env.V != realtime.Version {
				select {
				case c.errCh <- fmt.Errorf("bad envelope version: %d", env.V):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) realtime.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == realtime.TypeError {
				var ep realtime.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
			if _, ok := skipTypes[env.Type]; ok {
				continue
			}
			fatalf("unexpected envelope type: got=%q want=%q", env.Type, wantType)
		}
	}
}

func decodeSession(env realtime.Envelope) realtime.SessionPayload {
	var p realtime.SessionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal session.changed payload: %v", err)
	}
	if p.LoggedIn && p.Username == "" {
		fatalf("session.changed logged in without username")
	}
	return p
}

func outbound(typ string) realtime.Envelope {
	now := time.Now().UTC()
	return realtime.Envelope{
		V:       realtime.Version,
		Type:    typ,
		ID:      ids.MustNew(now),
		TS:      now,
		Payload: json.RawMessage(`{}`),
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env realtime.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
