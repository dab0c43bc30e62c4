//go:build e2e

package enrollment

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// subjectDIDKey matches the key the resolver steps save the registered DID under.
const subjectDIDKey = "subject_did"

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetOrigin() string
	Save(key, value string)
}

// RegisterSteps registers WebAuthn enrollment steps. The steps play the
// browser's part of the ceremony with a software P-256 key.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &enrollmentSteps{tc: tc, suffix: scenarioSuffix()}

	ctx.Step(`^I start enrollment for user "([^"]*)"$`, steps.startForUser)
	ctx.Step(`^I start enrollment without a user id$`, steps.startAnonymous)
	ctx.Step(`^I complete enrollment with a new passkey$`, steps.completeWithNewPasskey)
	ctx.Step(`^I complete enrollment with the same passkey$`, steps.completeWithSamePasskey)
	ctx.Step(`^I complete enrollment with a forged challenge$`, steps.completeWithForgedChallenge)
	ctx.Step(`^I complete enrollment from origin "([^"]*)"$`, steps.completeFromOrigin)
	ctx.Step(`^I save the enrolled DID$`, steps.saveEnrolledDID)
}

type passkey struct {
	credentialID string
	spki         []byte
}

// scenarioSuffix keeps user handles unique per scenario, so reruns against
// the same server never collide with a still-pending ceremony.
func scenarioSuffix() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

type enrollmentSteps struct {
	tc        TestContext
	suffix    string
	userID    string
	challenge string
	key       *passkey
}

func (s *enrollmentSteps) startForUser(ctx context.Context, userID string) error {
	return s.start(map[string]any{"userId": userID + "-" + s.suffix})
}

func (s *enrollmentSteps) startAnonymous(ctx context.Context) error {
	return s.start(map[string]any{})
}

func (s *enrollmentSteps) start(body map[string]any) error {
	if err := s.tc.POST("/enrollment/start", body); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return nil
	}
	challenge, err := s.tc.GetResponseField("challenge")
	if err != nil {
		return err
	}
	userID, err := s.tc.GetResponseField("user.id")
	if err != nil {
		return err
	}
	s.challenge = fmt.Sprint(challenge)
	s.userID = fmt.Sprint(userID)
	return nil
}

func newPasskey() (*passkey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	rawID := make([]byte, 16)
	if _, err := rand.Read(rawID); err != nil {
		return nil, err
	}
	return &passkey{
		credentialID: base64.RawURLEncoding.EncodeToString(rawID),
		spki:         spki,
	}, nil
}

func (s *enrollmentSteps) completeWithNewPasskey(ctx context.Context) error {
	key, err := newPasskey()
	if err != nil {
		return err
	}
	s.key = key
	return s.complete(s.challenge, s.tc.GetOrigin())
}

func (s *enrollmentSteps) completeWithSamePasskey(ctx context.Context) error {
	if s.key == nil {
		return fmt.Errorf("no passkey was created in this scenario")
	}
	return s.complete(s.challenge, s.tc.GetOrigin())
}

func (s *enrollmentSteps) completeWithForgedChallenge(ctx context.Context) error {
	key, err := newPasskey()
	if err != nil {
		return err
	}
	s.key = key
	forged := make([]byte, 32)
	if _, err := rand.Read(forged); err != nil {
		return err
	}
	return s.complete(base64.RawURLEncoding.EncodeToString(forged), s.tc.GetOrigin())
}

func (s *enrollmentSteps) completeFromOrigin(ctx context.Context, origin string) error {
	key, err := newPasskey()
	if err != nil {
		return err
	}
	s.key = key
	return s.complete(s.challenge, origin)
}

func (s *enrollmentSteps) complete(challenge, origin string) error {
	if s.userID == "" {
		return fmt.Errorf("enrollment was not started in this scenario")
	}
	clientData, err := json.Marshal(map[string]string{
		"type":      "webauthn.create",
		"challenge": challenge,
		"origin":    origin,
	})
	if err != nil {
		return err
	}
	return s.tc.POST("/enrollment/verify", map[string]any{
		"userId": s.userID,
		"credential": map[string]any{
			"id":    s.key.credentialID,
			"rawId": s.key.credentialID,
			"type":  "public-key",
			"response": map[string]any{
				"clientDataJSON": base64.RawURLEncoding.EncodeToString(clientData),
				"publicKey":      base64.RawURLEncoding.EncodeToString(s.key.spki),
			},
		},
	})
}

func (s *enrollmentSteps) saveEnrolledDID(ctx context.Context) error {
	subject, err := s.tc.GetResponseField("did")
	if err != nil {
		return err
	}
	s.tc.Save(subjectDIDKey, fmt.Sprint(subject))
	return nil
}
