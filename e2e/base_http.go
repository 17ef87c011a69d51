package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chat-direct/domain/event"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

// BaseSuite carries the configuration and the HTTP/websocket plumbing the
// scenarios build on. It talks to a live server over the wire, exactly
// like a client would.
type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping scenarios")
	}
}

func (s *BaseSuite) logStep(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Account is one registered user with its session token.
type Account struct {
	Email string
	Token string
}

// RegisterAccount creates a fresh user with a unique email.
func (s *BaseSuite) RegisterAccount() Account {
	email := fmt.Sprintf("e2e-%s@example.com", uuid.NewString()[:8])
	body := s.postJSON("/auth/register", map[string]string{
		"email":    email,
		"password": "E2eComplexPass123!",
	}, http.StatusCreated)

	var response struct {
		Token string `json:"token"`
	}
	s.Require().NoError(json.Unmarshal(body, &response))
	s.Require().NotEmpty(response.Token)
	return Account{Email: email, Token: response.Token}
}

func (s *BaseSuite) postJSON(path string, payload any, expectedStatus int) []byte {
	data, err := json.Marshal(payload)
	s.Require().NoError(err)

	url := fmt.Sprintf("http://%s%s", s.Config.ServerAddr, path)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	s.Require().NoError(err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	s.Require().NoError(err)

	if s.Config.DebugJSON {
		s.T().Logf("POST %s [%d]\n%s", path, resp.StatusCode, buf.String())
	}
	s.Require().Equal(expectedStatus, resp.StatusCode, "POST %s: %s", path, buf.String())
	return buf.Bytes()
}

func (s *BaseSuite) getJSON(path, token string, out any) {
	url := fmt.Sprintf("http://%s%s", s.Config.ServerAddr, path)
	request, err := http.NewRequest(http.MethodGet, url, nil)
	s.Require().NoError(err)
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(request)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	s.Require().NoError(err)

	if s.Config.DebugJSON {
		s.T().Logf("GET %s [%d]\n%s", path, resp.StatusCode, buf.String())
	}
	s.Require().Equal(http.StatusOK, resp.StatusCode, "GET %s: %s", path, buf.String())
	s.Require().NoError(json.Unmarshal(buf.Bytes(), out))
}

// UserID extracts the user id from an account's token. The payload is
// decoded without verification; the server owns the signature.
func (s *BaseSuite) UserID(account Account) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(account.Token, claims)
	s.Require().NoError(err)
	id, ok := claims["user_id"].(string)
	s.Require().True(ok, "token without user_id claim")
	return id
}

// Session is one live websocket connection.
type Session struct {
	conn *websocket.Conn
}

// Dial opens the websocket for an account. The token travels as a query
// parameter, matching what a browser client would do.
func (s *BaseSuite) Dial(account Account) *Session {
	url := fmt.Sprintf("ws://%s/ws?token=%s", s.Config.ServerAddr, account.Token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "websocket dial failed for %s", account.Email)
	return &Session{conn: conn}
}

func (session *Session) Close() {
	_ = session.conn.Close()
}

// Send frames a command into the wire envelope.
func (s *BaseSuite) Send(session *Session, eventType event.Type, payload any) {
	data, err := json.Marshal(payload)
	s.Require().NoError(err)
	s.Require().NoError(session.conn.WriteJSON(event.Envelope{Event: eventType, Data: data}))
}

// Expect reads envelopes until one of the wanted type arrives, skipping
// unrelated traffic such as presence changes. Fails after the deadline.
func (s *BaseSuite) Expect(session *Session, wanted event.Type, out any) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		s.Require().NoError(session.conn.SetReadDeadline(deadline))
		var envelope event.Envelope
		err := session.conn.ReadJSON(&envelope)
		s.Require().NoError(err, "waiting for %s", wanted)

		if s.Config.DebugJSON {
			s.T().Logf("EVENT %s\n%s", envelope.Event, string(envelope.Data))
		}
		if envelope.Event == event.ErrorType && wanted != event.ErrorType {
			s.Require().Failf("unexpected error event", "%s", string(envelope.Data))
		}
		if envelope.Event == wanted {
			if out != nil {
				s.Require().NoError(json.Unmarshal(envelope.Data, out))
			}
			return
		}
	}
}
