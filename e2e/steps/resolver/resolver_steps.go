//go:build e2e

package resolver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cucumber/godog"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"praman/internal/did"
)

// SubjectDIDKey is where the registered DID is saved for other step packages.
const SubjectDIDKey = "subject_did"

const keyTypeEd25519 = "Ed25519VerificationKey2020"

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	PUT(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Save(key, value string)
	Saved(key string) (string, error)
}

// RegisterSteps registers DID registration and resolution steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &resolverSteps{tc: tc}

	ctx.Step(`^I register a new DID with an Ed25519 key$`, steps.registerEd25519DID)
	ctx.Step(`^I register the same DID again$`, steps.registerSameDIDAgain)
	ctx.Step(`^I register the DID "([^"]*)" with an Ed25519 key$`, steps.registerNamedDID)
	ctx.Step(`^I resolve the registered DID$`, steps.resolveRegisteredDID)
	ctx.Step(`^I resolve the DID "([^"]*)"$`, steps.resolveDID)
	ctx.Step(`^I fetch the keys of the registered DID$`, steps.fetchKeys)
	ctx.Step(`^I deactivate the registered DID$`, steps.deactivateRegisteredDID)
	ctx.Step(`^I check the status of the registered DID$`, steps.checkStatus)
	ctx.Step(`^I request a pairwise DID for relying party "([^"]*)"$`, steps.requestPairwise)
	ctx.Step(`^I request a pairwise DID for relying party "([^"]*)" without a proof$`, steps.requestPairwiseWithoutProof)
	ctx.Step(`^I request a pairwise DID for relying party "([^"]*)" with a proof addressed to "([^"]*)"$`, steps.requestPairwiseForOtherAudience)
	ctx.Step(`^I save the pairwise DID as "([^"]*)"$`, steps.savePairwise)
	ctx.Step(`^the pairwise DIDs "([^"]*)" and "([^"]*)" should (differ|match)$`, steps.comparePairwise)

	ctx.Step(`^the response should describe the registered DID$`, steps.responseDescribesRegisteredDID)
	ctx.Step(`^the response key should match the registered key$`, steps.responseKeyMatches)
}

type resolverSteps struct {
	tc      TestContext
	did     string
	request map[string]any
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
}

func (s *resolverSteps) registerEd25519DID(ctx context.Context) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	subject, err := did.NewDeriver().DeriveBytes(pub, "e2e-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to derive DID: %w", err)
	}
	s.priv = priv
	return s.register(subject.String(), pub)
}

func (s *resolverSteps) registerNamedDID(ctx context.Context, raw string) error {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	return s.register(raw, pub)
}

func (s *resolverSteps) register(subject string, pub ed25519.PublicKey) error {
	s.did = subject
	s.pub = pub
	s.request = map[string]any{
		"did":             subject,
		"keyType":         keyTypeEd25519,
		"publicKeyBase64": base64.StdEncoding.EncodeToString(pub),
	}
	if err := s.tc.POST("/did", s.request); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() == 201 {
		s.tc.Save(SubjectDIDKey, subject)
	}
	return nil
}

func (s *resolverSteps) registerSameDIDAgain(ctx context.Context) error {
	if s.request == nil {
		return fmt.Errorf("no DID registered in this scenario")
	}
	return s.tc.POST("/did", s.request)
}

func (s *resolverSteps) resolveRegisteredDID(ctx context.Context) error {
	subject, err := s.tc.Saved(SubjectDIDKey)
	if err != nil {
		return err
	}
	return s.tc.GET("/did/" + subject)
}

func (s *resolverSteps) resolveDID(ctx context.Context, raw string) error {
	return s.tc.GET("/did/" + raw)
}

func (s *resolverSteps) fetchKeys(ctx context.Context) error {
	subject, err := s.tc.Saved(SubjectDIDKey)
	if err != nil {
		return err
	}
	return s.tc.GET("/did/" + subject + "/keys")
}

func (s *resolverSteps) deactivateRegisteredDID(ctx context.Context) error {
	subject, err := s.tc.Saved(SubjectDIDKey)
	if err != nil {
		return err
	}
	return s.tc.PUT("/did/"+subject+"/deactivate", nil)
}

func (s *resolverSteps) responseDescribesRegisteredDID(ctx context.Context) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	if id != s.did {
		return fmt.Errorf("expected document for %s but got %v", s.did, id)
	}
	controller, err := s.tc.GetResponseField("verificationMethod.0.controller")
	if err != nil {
		return err
	}
	if controller != s.did {
		return fmt.Errorf("verification method controller %v does not match %s", controller, s.did)
	}
	return nil
}

func (s *resolverSteps) responseKeyMatches(ctx context.Context) error {
	key, err := s.tc.GetResponseField("verificationMethod.0.publicKeyBase64")
	if err != nil {
		return err
	}
	encoded, ok := key.(string)
	if !ok {
		return fmt.Errorf("publicKeyBase64 is not a string: %v", key)
	}
	got, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("publicKeyBase64 does not decode: %w", err)
	}
	if !s.pub.Equal(ed25519.PublicKey(got)) {
		return fmt.Errorf("resolved key does not match the registered key")
	}
	return nil
}

func (s *resolverSteps) checkStatus(ctx context.Context) error {
	subject, err := s.tc.Saved(SubjectDIDKey)
	if err != nil {
		return err
	}
	return s.tc.GET("/did/" + subject + "/status")
}

func (s *resolverSteps) requestPairwise(ctx context.Context, rp string) error {
	return s.postPairwise(rp, rp)
}

func (s *resolverSteps) requestPairwiseForOtherAudience(ctx context.Context, rp, audience string) error {
	return s.postPairwise(rp, audience)
}

func (s *resolverSteps) requestPairwiseWithoutProof(ctx context.Context, rp string) error {
	subject, err := s.tc.Saved(SubjectDIDKey)
	if err != nil {
		return err
	}
	return s.tc.POST("/did/pairwise", map[string]any{
		"masterDID":      subject,
		"relyingPartyId": rp,
	})
}

func (s *resolverSteps) postPairwise(rp, audience string) error {
	subject, err := s.tc.Saved(SubjectDIDKey)
	if err != nil {
		return err
	}
	if s.priv == nil {
		return fmt.Errorf("no signing key for %s in this scenario", subject)
	}
	now := time.Now()
	proof, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
		Issuer:    subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString(s.priv)
	if err != nil {
		return fmt.Errorf("failed to sign proof of control: %w", err)
	}
	return s.tc.POST("/did/pairwise", map[string]any{
		"masterDID":      subject,
		"relyingPartyId": rp,
		"proof":          proof,
	})
}

func (s *resolverSteps) savePairwise(ctx context.Context, key string) error {
	value, err := s.tc.GetResponseField("pairwiseDID")
	if err != nil {
		return err
	}
	pairwise, ok := value.(string)
	if !ok {
		return fmt.Errorf("pairwiseDID is not a string: %v", value)
	}
	if _, err := did.Parse(pairwise); err != nil {
		return fmt.Errorf("pairwise DID is malformed: %w", err)
	}
	s.tc.Save(key, pairwise)
	return nil
}

func (s *resolverSteps) comparePairwise(ctx context.Context, first, second, relation string) error {
	a, err := s.tc.Saved(first)
	if err != nil {
		return err
	}
	b, err := s.tc.Saved(second)
	if err != nil {
		return err
	}
	if (a == b) != (relation == "match") {
		return fmt.Errorf("expected pairwise DIDs to %s: %s, %s", relation, a, b)
	}
	return nil
}
